package magma

import "testing"

func TestState_String_Unarmed(t *testing.T) {
	if s := StateUnarmed.String(); s != "unarmed" {
		t.Errorf("expected 'unarmed', got %q", s)
	}
}

func TestState_String_Armed(t *testing.T) {
	if s := StateArmed.String(); s != "armed" {
		t.Errorf("expected 'armed', got %q", s)
	}
}

func TestState_String_Reflowing(t *testing.T) {
	if s := StateReflowing.String(); s != "reflowing" {
		t.Errorf("expected 'reflowing', got %q", s)
	}
}

func TestState_String_Stopped(t *testing.T) {
	if s := StateStopped.String(); s != "stopped" {
		t.Errorf("expected 'stopped', got %q", s)
	}
}

func TestState_String_Unknown(t *testing.T) {
	unknown := State(999)
	if s := unknown.String(); s != "unknown" {
		t.Errorf("expected 'unknown', got %q", s)
	}
}

func TestState_Values(t *testing.T) {
	// Flows start at the zero value.
	if StateUnarmed != 0 {
		t.Errorf("expected StateUnarmed=0, got %d", StateUnarmed)
	}
	if StateArmed != 1 {
		t.Errorf("expected StateArmed=1, got %d", StateArmed)
	}
	if StateReflowing != 2 {
		t.Errorf("expected StateReflowing=2, got %d", StateReflowing)
	}
	if StateStopped != 3 {
		t.Errorf("expected StateStopped=3, got %d", StateStopped)
	}
}
