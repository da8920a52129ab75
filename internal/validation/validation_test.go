package validation

import "testing"

func TestIsValidID(t *testing.T) {
	valid := []string{"txn_001", "user-42", "a", "ABC123"}
	for _, id := range valid {
		if !IsValidID(id) {
			t.Errorf("IsValidID(%q) = false, want true", id)
		}
	}

	invalid := []string{"", "has space", "txn/001", "txn;drop", string(make([]byte, 65))}
	for _, id := range invalid {
		if IsValidID(id) {
			t.Errorf("IsValidID(%q) = true, want false", id)
		}
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  hello\x00world  ", 100); got != "helloworld" {
		t.Errorf("SanitizeString = %q", got)
	}
	if got := SanitizeString("abcdef", 3); got != "abc" {
		t.Errorf("SanitizeString truncation = %q", got)
	}
}

func TestValidate(t *testing.T) {
	errs := Validate(
		Required("userId", ""),
		ValidID("transactionId", "bad id"),
		PositiveAmount("amount", -5),
	)
	if len(errs) != 3 {
		t.Fatalf("expected 3 errors, got %d: %v", len(errs), errs)
	}

	errs = Validate(
		Required("userId", "user_1"),
		ValidID("transactionId", "txn_001"),
		PositiveAmount("amount", 10),
	)
	if len(errs) != 0 {
		t.Errorf("expected no errors, got %v", errs)
	}
}

func TestCoordinates(t *testing.T) {
	lat, lon := 40.7, -74.0
	badLat := 95.0

	if err := Coordinates(&lat, &lon)(); err != nil {
		t.Errorf("valid pair rejected: %v", err)
	}
	if err := Coordinates(nil, nil)(); err != nil {
		t.Errorf("absent pair rejected: %v", err)
	}
	if err := Coordinates(&lat, nil)(); err == nil {
		t.Error("half pair accepted")
	}
	if err := Coordinates(&badLat, &lon)(); err == nil {
		t.Error("out-of-range latitude accepted")
	}
}
