package logschema

import "testing"

func TestValidate(t *testing.T) {
	err := Validate("trade_decision", map[string]interface{}{
		"symbol":      "R_100",
		"decision_id": "a1b2",
		"digit":       5,
		"direction":   "match",
		"stake":       "20.00",
		"confidence":  82.5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = Validate("trade_decision", map[string]interface{}{
		"symbol": "R_100",
	})
	if err == nil {
		t.Fatalf("expected error for missing fields")
	}
}

func TestUnknownEventPasses(t *testing.T) {
	if err := Validate("some_future_event", map[string]interface{}{}); err != nil {
		t.Fatalf("unknown events must not fail validation: %v", err)
	}
}

func TestKnownEvents(t *testing.T) {
	names := Known()
	if len(names) == 0 {
		t.Fatalf("expected non-empty schema list")
	}
	found := false
	for _, n := range names {
		if n == "risk_event" {
			found = true
		}
	}
	if !found {
		t.Fatalf("risk_event not found in schemas")
	}
}
