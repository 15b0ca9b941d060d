package api

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafsii/sqlkv/pkg/kv"
)

func TestNewResultResponse(t *testing.T) {
	key := kv.MustKey("users", 1)

	tests := []struct {
		name string
		res  kv.Result
		want string
	}{
		{"absent", kv.Result{Key: key}, `{"key":["users",1]}`},
		{
			"never expires",
			kv.Result{Key: key, Value: json.RawMessage(`"a"`), CreatedAt: 10, UpdatedAt: 20, ExpiresAt: kv.Never},
			`{"key":["users",1],"value":"a","createdAt":10,"updatedAt":20,"expiresAt":-1}`,
		},
		{
			"expiring",
			kv.Result{Key: key, Value: json.RawMessage(`null`), CreatedAt: 10, UpdatedAt: 10, ExpiresAt: 70},
			`{"key":["users",1],"value":null,"createdAt":10,"updatedAt":10,"expiresAt":70}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := json.Marshal(NewResultResponse(tt.res))
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(body))
		})
	}
}
