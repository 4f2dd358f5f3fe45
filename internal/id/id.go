package id

import (
	"strings"

	"github.com/google/uuid"

	"github.com/cleared-dev/payrecon/internal/model"
	"github.com/cleared-dev/payrecon/internal/payment"
)

// SenderID returns the mapping key for a sender seen through source, like
// "acmecorp_stripe". The same sender under two sources yields two keys.
func SenderID(sender string, source model.PaymentSource) string {
	return payment.NormalizeClientName(sender) + "_" + string(source)
}

// SplitSenderID splits "acmecorp_stripe" into "acmecorp" and the stripe source.
func SplitSenderID(senderID string) (normalized string, source model.PaymentSource, ok bool) {
	i := strings.LastIndexByte(senderID, '_')
	if i < 0 {
		return "", "", false
	}
	src, ok := model.ParsePaymentSource(senderID[i+1:])
	if !ok {
		return "", "", false
	}
	return senderID[:i], src, true
}

// NewRecordID returns a record id shaped like AITable's, e.g. "rec3f9a0c1d2e4b5a6f".
func NewRecordID() string {
	u := uuid.New()
	return "rec" + strings.ReplaceAll(u.String(), "-", "")[:16]
}
