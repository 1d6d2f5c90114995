package env

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolver_Resolve(t *testing.T) {
	t.Setenv("BEACONSPEC_TEST_HOST", "shop.example.com")

	r := NewResolver()
	r.SetVariables(map[string]string{"sku": "abc12", "event": "add_to_cart"})

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"no placeholders", "https://x/collect", "https://x/collect"},
		{"variable", "https://x/p/{{sku}}", "https://x/p/abc12"},
		{"spaces inside braces", "{{ event }}", "add_to_cart"},
		{"process env fallback", "https://{{BEACONSPEC_TEST_HOST}}/", "https://shop.example.com/"},
		{"unresolved left in place", "{{missing}}", "{{missing}}"},
		{"builtin", "q={{$urlEncode('a b')}}", "q=a+b"},
		{"unknown builtin left in place", "{{$nope()}}", "{{$nope()}}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, r.Resolve(tt.input))
		})
	}
}

func TestResolver_BuiltinUUID(t *testing.T) {
	out := NewResolver().Resolve("{{$uuid()}}")
	_, err := uuid.Parse(out)
	assert.NoError(t, err)
}

func TestResolver_VariablesOverrideEnv(t *testing.T) {
	t.Setenv("SKU", "from-env")
	r := NewResolver()
	r.SetVariable("SKU", "from-var")
	assert.Equal(t, "from-var", r.Resolve("{{SKU}}"))

	r.SetUseOSEnv(false)
	t.Setenv("ONLY_ENV", "x")
	assert.Equal(t, "{{ONLY_ENV}}", r.Resolve("{{ONLY_ENV}}"))
}

func TestResolver_Warnings(t *testing.T) {
	var warnings []string
	r := NewResolver()
	r.SetWarnFunc(func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	})

	r.Resolve("{{a}} {{$b()}}")
	require.Len(t, warnings, 2)
	assert.Equal(t, "unresolved variable: a", warnings[0])
	assert.Equal(t, "unresolved function call: b()", warnings[1])
}
