package kv

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Kind identifies the scalar type held by a KeyPart
type Kind uint8

const (
	// KindInvalid is the zero KeyPart and any number that failed to convert
	KindInvalid Kind = iota
	KindString
	KindNumber
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	default:
		return "invalid"
	}
}

// KeyPart is one scalar element of a composite key. Numbers are held as
// their canonical JSON text, so a decoded part is identical to the one that
// was encoded.
type KeyPart struct {
	kind Kind
	text string
	b    bool
}

// String returns a text key part.
func String(s string) KeyPart {
	return KeyPart{kind: KindString, text: s}
}

// Int returns a numeric key part.
func Int(i int64) KeyPart {
	return KeyPart{kind: KindNumber, text: strconv.FormatInt(i, 10)}
}

// Float returns a numeric key part. NaN and infinities yield an invalid part
// that fails encoding with ErrInvalidKey.
func Float(f float64) KeyPart {
	if f == 0 {
		f = 0 // drop the sign of negative zero
	}
	b, err := json.Marshal(f)
	if err != nil {
		return KeyPart{}
	}
	return KeyPart{kind: KindNumber, text: string(b)}
}

// Bool returns a true or false key part.
func Bool(b bool) KeyPart {
	return KeyPart{kind: KindBool, b: b}
}

func (p KeyPart) Kind() Kind {
	return p.kind
}

// Text returns the value of a text part.
func (p KeyPart) Text() (string, bool) {
	return p.text, p.kind == KindString
}

// Int64 returns the value of an integral numeric part.
func (p KeyPart) Int64() (int64, bool) {
	if p.kind != KindNumber {
		return 0, false
	}
	i, err := strconv.ParseInt(p.text, 10, 64)
	return i, err == nil
}

// Float64 returns the value of a numeric part.
func (p KeyPart) Float64() (float64, bool) {
	if p.kind != KindNumber {
		return 0, false
	}
	f, err := strconv.ParseFloat(p.text, 64)
	return f, err == nil
}

// BoolValue returns the value of a boolean part.
func (p KeyPart) BoolValue() (bool, bool) {
	return p.b, p.kind == KindBool
}

// Value returns the part as a string, json.Number or bool.
func (p KeyPart) Value() any {
	switch p.kind {
	case KindString:
		return p.text
	case KindNumber:
		return json.Number(p.text)
	case KindBool:
		return p.b
	default:
		return nil
	}
}

// String returns the literal form of the part as it appears in an encoded key.
func (p KeyPart) String() string {
	var b strings.Builder
	if err := p.appendTo(&b); err != nil {
		return "<invalid>"
	}
	return b.String()
}

func (p KeyPart) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	if err := p.appendTo(&b); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

func (p *KeyPart) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	part, err := partFromJSON(v)
	if err != nil {
		return err
	}
	*p = part
	return nil
}

func (p KeyPart) equal(o KeyPart) bool {
	return p.kind == o.kind && p.text == o.text && p.b == o.b
}

func (p KeyPart) appendTo(b *strings.Builder) error {
	switch p.kind {
	case KindString:
		if !utf8.ValidString(p.text) {
			return fmt.Errorf("%w: text part is not valid UTF-8", ErrInvalidKey)
		}
		b.WriteString(quote(p.text))
	case KindNumber:
		b.WriteString(p.text)
	case KindBool:
		b.WriteString(strconv.FormatBool(p.b))
	default:
		return fmt.Errorf("%w: invalid key part", ErrInvalidKey)
	}
	return nil
}

// quote renders s as a JSON string literal without HTML escaping.
func quote(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return strings.TrimSuffix(buf.String(), "\n")
}

// Key is a non-empty ordered sequence of key parts. Two keys are equal iff
// their parts are equal element-wise.
type Key []KeyPart

// NewKey builds a key from strings, bools, Go integer and float kinds,
// json.Number and KeyPart values.
func NewKey(parts ...any) (Key, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: key must not be empty", ErrInvalidKey)
	}
	key := make(Key, 0, len(parts))
	for i, v := range parts {
		p, err := toPart(v)
		if err != nil {
			return nil, fmt.Errorf("key part %d: %w", i, err)
		}
		key = append(key, p)
	}
	return key, nil
}

// MustKey is like NewKey but panics on error.
func MustKey(parts ...any) Key {
	key, err := NewKey(parts...)
	if err != nil {
		panic(err)
	}
	return key
}

func toPart(v any) (KeyPart, error) {
	var p KeyPart
	switch x := v.(type) {
	case KeyPart:
		p = x
	case string:
		p = String(x)
	case bool:
		p = Bool(x)
	case int:
		p = Int(int64(x))
	case int8:
		p = Int(int64(x))
	case int16:
		p = Int(int64(x))
	case int32:
		p = Int(int64(x))
	case int64:
		p = Int(x)
	case uint:
		p = KeyPart{kind: KindNumber, text: strconv.FormatUint(uint64(x), 10)}
	case uint8:
		p = Int(int64(x))
	case uint16:
		p = Int(int64(x))
	case uint32:
		p = Int(int64(x))
	case uint64:
		p = KeyPart{kind: KindNumber, text: strconv.FormatUint(x, 10)}
	case float32:
		p = Float(float64(x))
	case float64:
		p = Float(x)
	case json.Number:
		if !isJSONNumber(x.String()) {
			return KeyPart{}, fmt.Errorf("%w: malformed number %q", ErrInvalidKey, x)
		}
		if f, err := x.Float64(); err != nil || math.IsInf(f, 0) {
			return KeyPart{}, fmt.Errorf("%w: number %q out of range", ErrInvalidKey, x)
		}
		p = KeyPart{kind: KindNumber, text: x.String()}
	default:
		return KeyPart{}, fmt.Errorf("%w: unsupported key part type %T", ErrInvalidKey, v)
	}
	if p.kind == KindInvalid {
		return KeyPart{}, fmt.Errorf("%w: invalid key part %v", ErrInvalidKey, v)
	}
	return p, nil
}

// isJSONNumber reports whether s is exactly one JSON number literal.
// strconv accepts NaN, hex floats and a leading '+', which JSON does not.
func isJSONNumber(s string) bool {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return false
	}
	n, ok := tok.(json.Number)
	if !ok || n.String() != s {
		return false
	}
	_, err = dec.Token()
	return errors.Is(err, io.EOF)
}

func (k Key) Equal(o Key) bool {
	if len(k) != len(o) {
		return false
	}
	for i := range k {
		if !k[i].equal(o[i]) {
			return false
		}
	}
	return true
}

// String returns the encoded key, or a placeholder for an invalid key.
func (k Key) String() string {
	s, err := EncodeKey(k)
	if err != nil {
		return "<invalid key>"
	}
	return s
}

func (k Key) MarshalJSON() ([]byte, error) {
	s, err := EncodeKey(k)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

func (k *Key) UnmarshalJSON(data []byte) error {
	key, err := DecodeKey(string(data))
	if err != nil {
		return err
	}
	*k = key
	return nil
}

// EncodeKey serializes a key into its canonical, sortable storage form: a
// compact JSON array such as ["users",42,true].
func EncodeKey(key Key) (string, error) {
	if len(key) == 0 {
		return "", fmt.Errorf("%w: key must not be empty", ErrInvalidKey)
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, p := range key {
		if i > 0 {
			b.WriteByte(',')
		}
		if err := p.appendTo(&b); err != nil {
			return "", err
		}
	}
	b.WriteByte(']')
	return b.String(), nil
}

// LikeEscape is the escape character used by EncodePrefixPattern.
const LikeEscape = `\`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// EncodePrefixPattern returns a LIKE pattern matching every key that extends
// prefix by at least one part. Wildcard metacharacters inside the encoded
// prefix are escaped with LikeEscape.
func EncodePrefixPattern(prefix Key) (string, error) {
	encoded, err := EncodeKey(prefix)
	if err != nil {
		return "", err
	}
	return likeEscaper.Replace(encoded[:len(encoded)-1]) + ",%", nil
}

// DecodeKey is the inverse of EncodeKey.
func DecodeKey(s string) (Key, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()

	var raw []any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after key", ErrInvalidKey)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: key must not be empty", ErrInvalidKey)
	}

	key := make(Key, 0, len(raw))
	for _, v := range raw {
		p, err := partFromJSON(v)
		if err != nil {
			return nil, err
		}
		key = append(key, p)
	}
	return key, nil
}

func partFromJSON(v any) (KeyPart, error) {
	switch x := v.(type) {
	case string:
		return String(x), nil
	case json.Number:
		return KeyPart{kind: KindNumber, text: x.String()}, nil
	case bool:
		return Bool(x), nil
	default:
		return KeyPart{}, fmt.Errorf("%w: unsupported key part %v", ErrInvalidKey, v)
	}
}
