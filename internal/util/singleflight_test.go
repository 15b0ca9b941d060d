package util

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dups(g *Group[int], key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.m[key]; ok {
		return c.dups
	}
	return -1
}

func TestDoChan(t *testing.T) {
	var g Group[string]
	res := <-g.DoChan("key", func() (string, error) {
		return "bar", nil
	})
	require.NoError(t, res.Err)
	assert.Equal(t, "bar", res.Val)
	assert.False(t, res.Shared)
}

func TestDoChanErr(t *testing.T) {
	var g Group[int]
	someErr := errors.New("some error")
	res := <-g.DoChan("key", func() (int, error) {
		return 0, someErr
	})
	assert.ErrorIs(t, res.Err, someErr)
	assert.Zero(t, res.Val)
}

func TestDoChanDupSuppress(t *testing.T) {
	var g Group[int]
	release := make(chan struct{})
	calls := 0

	fn := func() (int, error) {
		calls++
		<-release
		return 7, nil
	}

	const n = 5
	chans := make([]<-chan Result[int], n)
	for i := range chans {
		chans[i] = g.DoChan("key", fn)
	}
	assert.Equal(t, n-1, dups(&g, "key"))

	close(release)
	for _, ch := range chans {
		res := <-ch
		assert.Equal(t, 7, res.Val)
		assert.True(t, res.Shared)
	}
	assert.Equal(t, 1, calls)
	assert.Equal(t, -1, dups(&g, "key"))
}

func TestDoChanSharesError(t *testing.T) {
	var g Group[int]
	release := make(chan struct{})
	someErr := errors.New("backend down")

	first := g.DoChan("key", func() (int, error) {
		<-release
		return 0, someErr
	})
	second := g.DoChan("key", func() (int, error) {
		return 1, nil
	})
	close(release)

	assert.ErrorIs(t, (<-first).Err, someErr)
	assert.ErrorIs(t, (<-second).Err, someErr)
}

func TestDoChanAbandonedWaiter(t *testing.T) {
	var g Group[int]
	release := make(chan struct{})

	// the first caller never reads its channel
	_ = g.DoChan("key", func() (int, error) {
		<-release
		return 3, nil
	})
	second := g.DoChan("key", func() (int, error) {
		return 0, nil
	})
	close(release)

	select {
	case res := <-second:
		assert.Equal(t, 3, res.Val)
	case <-time.After(time.Second):
		t.Fatal("waiter blocked by an abandoned caller")
	}
}

func TestDoChanRunsAgainAfterCompletion(t *testing.T) {
	var g Group[int]
	<-g.DoChan("key", func() (int, error) { return 1, nil })

	res := <-g.DoChan("key", func() (int, error) { return 2, nil })
	assert.Equal(t, 2, res.Val)
	assert.False(t, res.Shared)
}

func TestDoChanPanic(t *testing.T) {
	var g Group[int]
	cause := errors.New("nil pointer dereference")
	res := <-g.DoChan("key", func() (int, error) {
		panic(cause)
	})

	var perr *PanicError
	require.ErrorAs(t, res.Err, &perr)
	assert.ErrorIs(t, res.Err, cause)
	assert.Contains(t, perr.Error(), "nil pointer dereference")
	assert.Equal(t, -1, dups(&g, "key"))
}
