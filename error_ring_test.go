package magma

import (
	"errors"
	"testing"
	"time"
)

func failure(msg string) Failure {
	return Failure{At: time.Unix(0, 0), Stage: StagePreprocess, Err: errors.New(msg)}
}

func TestFailureRing_NilSafe(t *testing.T) {
	var r *failureRing

	// All operations should be safe on nil
	r.push(failure("test"))
	r.clear()

	if r.all() != nil {
		t.Error("expected nil from nil ring")
	}
}

func TestFailureRing_ZeroSize(t *testing.T) {
	if r := newFailureRing(0); r != nil {
		t.Error("expected nil ring for size 0")
	}
}

func TestFailureRing_NegativeSize(t *testing.T) {
	if r := newFailureRing(-1); r != nil {
		t.Error("expected nil ring for negative size")
	}
}

func TestFailureRing_FillsWithoutWrapping(t *testing.T) {
	r := newFailureRing(3)

	r.push(failure("error1"))
	r.push(failure("error2"))
	r.push(failure("error3"))

	all := r.all()
	if len(all) != 3 {
		t.Fatalf("expected 3 failures, got %d", len(all))
	}

	// Oldest first
	for i, want := range []string{"error1", "error2", "error3"} {
		if all[i].Err.Error() != want {
			t.Errorf("failure %d: expected %q, got %q", i, want, all[i].Err)
		}
	}
}

func TestFailureRing_WrapsAndEvictsOldest(t *testing.T) {
	r := newFailureRing(3)

	r.push(failure("error1"))
	r.push(failure("error2"))
	r.push(failure("error3"))
	r.push(failure("error4")) // Should evict error1

	all := r.all()
	if len(all) != 3 {
		t.Fatalf("expected 3 failures, got %d", len(all))
	}
	for i, want := range []string{"error2", "error3", "error4"} {
		if all[i].Err.Error() != want {
			t.Errorf("failure %d: expected %q, got %q", i, want, all[i].Err)
		}
	}
}

func TestFailureRing_MultipleWraps(t *testing.T) {
	r := newFailureRing(2)

	for i := 0; i < 10; i++ {
		r.push(failure("error"))
	}

	if all := r.all(); len(all) != 2 {
		t.Errorf("expected 2 failures after multiple wraps, got %d", len(all))
	}
}

func TestFailureRing_ClearThenPush(t *testing.T) {
	r := newFailureRing(3)

	r.push(failure("error1"))
	r.push(failure("error2"))
	r.clear()

	if all := r.all(); all != nil {
		t.Errorf("expected nil after clear, got %v", all)
	}

	r.push(failure("new error"))

	all := r.all()
	if len(all) != 1 {
		t.Fatalf("expected 1 failure after clear+push, got %d", len(all))
	}
	if all[0].Err.Error() != "new error" {
		t.Error("expected new error")
	}
}

func TestFailureRing_SizeOne(t *testing.T) {
	r := newFailureRing(1)

	r.push(failure("error1"))
	r.push(failure("error2"))

	all := r.all()
	if len(all) != 1 || all[0].Err.Error() != "error2" {
		t.Error("expected error2 to replace error1")
	}
}
