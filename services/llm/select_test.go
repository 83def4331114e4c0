package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUseLocalModel(t *testing.T) {
	cases := map[string]bool{
		"true":  true,
		"TRUE":  true,
		"True":  true,
		"false": false,
		"1":     false,
		"":      false,
	}
	for value, want := range cases {
		t.Setenv("USE_LOCAL_MODEL", value)
		assert.Equal(t, want, UseLocalModel(), "USE_LOCAL_MODEL=%q", value)
	}
}
