package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"120.50", "120.50"},
		{"-4.00", "-4.00"},
		{" 3500 ", "3500.00"},
		{"0.1", "0.10"},
	}
	for _, tt := range tests {
		got, err := ParseAmount(tt.input)
		require.NoError(t, err, "input %q", tt.input)
		assert.Equal(t, tt.want, got.StringFixed(2))
	}
}

func TestParseAmount_Invalid(t *testing.T) {
	for _, input := range []string{"", "   ", "abc", "12,50", "NaN"} {
		_, err := ParseAmount(input)
		require.Error(t, err, "input %q", input)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	}
}
