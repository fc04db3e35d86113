package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Gateway event names and statuses.
const (
	EventBillingPaid    = "billing.paid"
	EventBillingUpdated = "billing.updated"
	billingStatusPaid   = "PAID"
)

// Envelope is a validated gateway event.
type Envelope struct {
	ID      string
	Event   string
	DevMode bool
	// Status is the top-level data.status some gateways send on update events.
	Status  string
	Billing Billing
}

// Billing is the charge the event refers to.
type Billing struct {
	ID       string          `json:"id"`
	Status   string          `json:"status"`
	Amount   decimal.Decimal `json:"amount"`
	Customer Customer        `json:"customer"`
	Metadata Metadata        `json:"metadata"`
}

// Customer identifies the payer; its id is our user id.
type Customer struct {
	ID string `json:"id"`
}

// Metadata is what checkout attached to the charge.
type Metadata struct {
	PlanID string `json:"planId"`
	UserID string `json:"userId"`
}

type rawEnvelope struct {
	ID      string          `json:"id"`
	Event   string          `json:"event"`
	DevMode bool            `json:"devMode"`
	Data    json.RawMessage `json:"data"`
}

type rawData struct {
	Status  string   `json:"status"`
	Billing *Billing `json:"billing"`
}

// ParseEnvelope decodes and validates an authenticated request body.
// The billing object is read from data.billing, or from data itself when the gateway sends it flat.
func ParseEnvelope(body []byte) (Envelope, error) {
	var raw rawEnvelope
	if err := json.Unmarshal(body, &raw); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	envelope := Envelope{
		ID:      strings.TrimSpace(raw.ID),
		Event:   strings.TrimSpace(raw.Event),
		DevMode: raw.DevMode,
	}
	if envelope.ID == "" {
		return Envelope{}, fmt.Errorf("%w: missing id", ErrMalformedEvent)
	}
	if envelope.Event == "" {
		return Envelope{}, fmt.Errorf("%w: missing event", ErrMalformedEvent)
	}
	trimmedData := bytes.TrimSpace(raw.Data)
	if len(trimmedData) == 0 || bytes.Equal(trimmedData, []byte("null")) {
		return envelope, nil
	}
	var data rawData
	if err := json.Unmarshal(trimmedData, &data); err != nil {
		return Envelope{}, fmt.Errorf("%w: data: %v", ErrMalformedEvent, err)
	}
	envelope.Status = strings.TrimSpace(data.Status)
	if data.Billing != nil {
		envelope.Billing = *data.Billing
		return envelope, nil
	}
	if err := json.Unmarshal(trimmedData, &envelope.Billing); err != nil {
		return Envelope{}, fmt.Errorf("%w: billing: %v", ErrMalformedEvent, err)
	}
	return envelope, nil
}

// IsPaymentConfirmed reports whether the event means the charge was paid.
func (envelope Envelope) IsPaymentConfirmed() bool {
	switch envelope.Event {
	case EventBillingPaid:
		return true
	case EventBillingUpdated:
		return strings.EqualFold(envelope.Status, billingStatusPaid) || strings.EqualFold(envelope.Billing.Status, billingStatusPaid)
	default:
		return false
	}
}

// UserID returns the customer id, falling back to the user id checkout put in metadata.
func (envelope Envelope) UserID() string {
	if customerID := strings.TrimSpace(envelope.Billing.Customer.ID); customerID != "" {
		return customerID
	}
	return strings.TrimSpace(envelope.Billing.Metadata.UserID)
}

// PlanID returns the plan checkout put in metadata.
func (envelope Envelope) PlanID() string {
	return strings.TrimSpace(envelope.Billing.Metadata.PlanID)
}
