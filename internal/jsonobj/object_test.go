package jsonobj

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	for _, text := range []string{"", "null"} {
		o, err := Parse(text)
		require.NoError(t, err)
		assert.Equal(t, "{}", o.Raw())
	}

	o, err := Parse(`{"a":{"b":1}}`)
	require.NoError(t, err)
	n, ok := o.GetInt("a.b")
	assert.True(t, ok)
	assert.Equal(t, int64(1), n)

	_, err = Parse(`{"a":`)
	assert.True(t, errors.Is(err, ErrInvalidJSON))
}

func TestSetAndDelete(t *testing.T) {
	o := New()
	require.NoError(t, o.Set("user.name", "ada"))
	require.NoError(t, o.Set("user.admin", true))
	require.NoError(t, o.Set("count", 3))

	name, ok := o.GetString("user.name")
	assert.True(t, ok)
	assert.Equal(t, "ada", name)
	admin, ok := o.GetBool("user.admin")
	assert.True(t, ok)
	assert.True(t, admin)

	v, ok := o.Get("count")
	assert.True(t, ok)
	assert.Equal(t, float64(3), v)

	require.NoError(t, o.Set("user.name", nil))
	assert.False(t, o.Exists("user.name"))
	assert.True(t, o.Exists("user.admin"))

	require.NoError(t, o.Delete("missing.path"))
}

func TestSetNestedObject(t *testing.T) {
	inner, err := Parse(`{"x":[1,2]}`)
	require.NoError(t, err)

	o := New()
	require.NoError(t, o.Set("inner", inner))
	assert.JSONEq(t, `{"inner":{"x":[1,2]}}`, o.Raw())
}

func TestFrom(t *testing.T) {
	o, err := From(map[string]any{"a.b": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a.b":1}`, o.Raw())
}

func TestJSONMarshaling(t *testing.T) {
	type wrapper struct {
		Data *Object `json:"data"`
	}

	in := wrapper{Data: New()}
	require.NoError(t, in.Data.Set("k", "v"))

	b, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":{"k":"v"}}`, string(b))

	var out wrapper
	require.NoError(t, json.Unmarshal(b, &out))
	assert.True(t, in.Data.Equal(out.Data))
}
