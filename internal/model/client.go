package model

import "time"

// Client is a customer record from the clients table.
type Client struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// MaxConfidence is the confidence of an exact or manual mapping.
const MaxConfidence = 100

// ClientMapping associates a normalized sender identity with a client.
type ClientMapping struct {
	RecordID      string        `json:"recordId,omitempty"`
	SenderID      string        `json:"senderId"` // normalized sender + "_" + source
	RawSender     string        `json:"rawSender"`
	ClientID      string        `json:"clientId"`
	Confidence    int           `json:"confidence"` // 0..100
	UsageCount    int           `json:"usageCount"`
	LastUsed      time.Time     `json:"lastUsed"`
	PaymentSource PaymentSource `json:"paymentSource"`
	Manual        bool          `json:"manual"`
}
