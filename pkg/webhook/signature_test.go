package webhook

import (
	"errors"
	"strings"
	"testing"
)

func TestVerifySignatureAcceptsValidHeaders(test *testing.T) {
	test.Parallel()
	body := []byte(`{"id":"evt_1"}`)
	signature := Sign(testSecret, body)
	for _, header := range []string{signature, strings.ToUpper(signature), "sha256=" + signature, "  " + signature + " "} {
		if err := VerifySignature(testSecret, header, body); err != nil {
			test.Fatalf("header %q: %v", header, err)
		}
	}
}

func TestVerifySignatureCoversExactBytes(test *testing.T) {
	test.Parallel()
	body := []byte(`{"id":"evt_1"}`)
	signature := Sign(testSecret, body)
	reformatted := []byte(`{ "id": "evt_1" }`)
	if err := VerifySignature(testSecret, signature, reformatted); !errors.Is(err, ErrUnauthorized) {
		test.Fatalf("expected ErrUnauthorized for re-encoded body, got %v", err)
	}
}

func TestParseEnvelopeReadsNestedAndFlatBilling(test *testing.T) {
	test.Parallel()
	nested, err := ParseEnvelope([]byte(paidMonthlyBody))
	if err != nil {
		test.Fatalf("nested: %v", err)
	}
	if nested.UserID() != registeredUser || nested.PlanID() != "monthly" || nested.Billing.Amount.IntPart() != 2990 {
		test.Fatalf("unexpected nested envelope: %+v", nested)
	}
	flat, err := ParseEnvelope([]byte(`{"id":"evt_7","event":"billing.paid","data":{"amount":"6600","metadata":{"planId":"quarterly","userId":"uid-7"}}}`))
	if err != nil {
		test.Fatalf("flat: %v", err)
	}
	if flat.UserID() != "uid-7" || flat.PlanID() != "quarterly" || flat.Billing.Amount.IntPart() != 6600 {
		test.Fatalf("unexpected flat envelope: %+v", flat)
	}
	if !flat.IsPaymentConfirmed() {
		test.Fatalf("expected billing.paid to confirm payment")
	}
}
