package validator

import (
	"strings"
	"testing"
)

func newValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return v
}

func TestLocationSchema(t *testing.T) {
	v := newValidator(t)

	ok := v.Validate(KindLocation, []byte(`{"timestamp":"2026-01-01T00:00:00Z","lat":1.5,"lng":-3,"speed":2}`))
	if !ok.Valid {
		t.Fatalf("expected valid sample, got %v", ok.Errors)
	}

	bad := v.Validate(KindLocation, []byte(`{"timestamp":"2026-01-01T00:00:00Z","lat":120}`))
	if bad.Valid || len(bad.Errors) < 2 {
		t.Fatalf("expected errors for lat range and missing lng, got %+v", bad)
	}
	if !strings.Contains(strings.Join(bad.Errors, ";"), "lng") {
		t.Fatalf("missing lng error: %v", bad.Errors)
	}
}

func TestNotificationSchemaRejectsUnknownFields(t *testing.T) {
	v := newValidator(t)

	res := v.Validate(KindNotification, []byte(`{"recipient":"ops","title":"x","priority":1}`))
	if res.Valid {
		t.Fatalf("expected additional property to be rejected")
	}
}

func TestAdvisorRequestSchema(t *testing.T) {
	v := newValidator(t)

	ok := v.Validate(KindAdvisorRequest, []byte(`{"scope":{"kind":"floor","floorName":"F1"},"rows":[{"product":"A","currentStock":2,"price":null}]}`))
	if !ok.Valid {
		t.Fatalf("expected valid request, got %v", ok.Errors)
	}
	bad := v.Validate(KindAdvisorRequest, []byte(`{"scope":{"kind":"planet"}}`))
	if bad.Valid {
		t.Fatalf("expected invalid scope kind")
	}
}

func TestMalformedAndMissingPayloads(t *testing.T) {
	v := newValidator(t)

	if res := v.Validate(KindInventoryItems, nil); res.Valid {
		t.Fatalf("empty payload should be invalid")
	}
	if res := v.Validate(KindInventoryItems, []byte(`{"items":`)); res.Valid {
		t.Fatalf("malformed JSON should be invalid")
	}
	if res := v.Validate(Kind("other"), []byte(`{}`)); res.Valid {
		t.Fatalf("unknown kind should be invalid")
	}
}
