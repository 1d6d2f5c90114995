package builtin

import (
	"regexp"
	"strconv"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Call(t *testing.T) {
	r := NewRegistry()

	v, ok := r.Call("uuid()")
	require.True(t, ok)
	_, err := uuid.Parse(v.(string))
	assert.NoError(t, err)

	v, ok = r.Call("randomString(12)")
	require.True(t, ok)
	assert.Len(t, v.(string), 12)

	v, ok = r.Call("randomEmail()")
	require.True(t, ok)
	assert.Regexp(t, regexp.MustCompile(`^[a-z]{8}@[a-z]{6}\.com$`), v)

	v, ok = r.Call(`urlEncode("a b&c")`)
	require.True(t, ok)
	assert.Equal(t, "a+b%26c", v)

	v, ok = r.Call("timestampMs()")
	require.True(t, ok)
	assert.Positive(t, v.(int64))

	v, ok = r.Call("date('2006')")
	require.True(t, ok)
	_, err = strconv.Atoi(v.(string))
	assert.NoError(t, err)
}

func TestRegistry_Random(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < 50; i++ {
		v, ok := r.Call("random(5, 7)")
		require.True(t, ok)
		n := v.(int)
		assert.GreaterOrEqual(t, n, 5)
		assert.LessOrEqual(t, n, 7)
	}

	v, _ := r.Call("random(9, 3)")
	assert.GreaterOrEqual(t, v.(int), 3)
	assert.LessOrEqual(t, v.(int), 9)
}

func TestRegistry_Unknown(t *testing.T) {
	r := NewRegistry()

	_, ok := r.Call("nope()")
	assert.False(t, ok)

	_, ok = r.Call("uuid")
	assert.False(t, ok)
}

func TestRegistry_BadArgumentFallsBack(t *testing.T) {
	v, ok := NewRegistry().Call("randomString(many)")
	require.True(t, ok)
	assert.Len(t, v.(string), 16)
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	r.Register("sku", func(args []string) any { return "SKU-" + args[0] })

	v, ok := r.Call("sku(42)")
	require.True(t, ok)
	assert.Equal(t, "SKU-42", v)
}

func TestParseArgs(t *testing.T) {
	assert.Equal(t, []string{"a", "b, c", "d"}, parseArgs(`a, "b, c", 'd'`))
	assert.Nil(t, parseArgs(""))
}
