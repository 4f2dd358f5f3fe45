package id

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cleared-dev/payrecon/internal/model"
)

func TestSenderID(t *testing.T) {
	tests := []struct {
		sender string
		source model.PaymentSource
		want   string
	}{
		{"ACME Corp.", model.SourceStripe, "acmecorp_stripe"},
		{"ACME Corp.", model.SourcePayPal, "acmecorp_paypal"},
		{"Widget-Co #2", model.SourceUnknown, "widgetco2_unknown"},
		{"", model.SourceWire, "_wire"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SenderID(tt.sender, tt.source))
	}
}

func TestSplitSenderID(t *testing.T) {
	norm, src, ok := SplitSenderID("acmecorp_stripe")
	assert.True(t, ok)
	assert.Equal(t, "acmecorp", norm)
	assert.Equal(t, model.SourceStripe, src)

	for _, bad := range []string{"", "acmecorp", "acmecorp_venmo"} {
		_, _, ok := SplitSenderID(bad)
		assert.False(t, ok, "input %q", bad)
	}
}

func TestSplitSenderID_RoundTrip(t *testing.T) {
	for _, src := range model.PaymentSources {
		norm, got, ok := SplitSenderID(SenderID("Acme Corp", src))
		assert.True(t, ok)
		assert.Equal(t, "acmecorp", norm)
		assert.Equal(t, src, got)
	}
}

func TestNewRecordID(t *testing.T) {
	a, b := NewRecordID(), NewRecordID()
	assert.True(t, strings.HasPrefix(a, "rec"))
	assert.Len(t, a, 19)
	assert.NotEqual(t, a, b)
}
