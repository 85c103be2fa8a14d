package resource

import (
	"errors"
	"testing"

	"github.com/spaghettifunk/vixen/internal/corerr"
)

func TestRMStartsUninitialized(t *testing.T) {
	rm := NewRM[int]("counter")
	if rm.State() != StateUninitialized {
		t.Errorf("State() = %v, want StateUninitialized", rm.State())
	}
	v, err := rm.Get()
	if err != nil {
		t.Fatalf("unexpected error reading an uninitialized wrapper: %v", err)
	}
	if v != 0 {
		t.Errorf("Get() = %d, want zero value", v)
	}
}

func TestRMSetTransitionsToValid(t *testing.T) {
	rm := NewRM[string]("name")
	rm.Set("hello")
	if rm.State() != StateValid {
		t.Errorf("State() = %v, want StateValid", rm.State())
	}
	v, err := rm.Get()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "hello" {
		t.Errorf("Get() = %q, want %q", v, "hello")
	}
}

func TestRMMarkDirtyOnlyAffectsValid(t *testing.T) {
	rm := NewRM[int]("n")
	rm.MarkDirty()
	if rm.State() != StateUninitialized {
		t.Errorf("MarkDirty on an Uninitialized wrapper changed state to %v", rm.State())
	}
	rm.Set(1)
	rm.MarkDirty()
	if rm.State() != StateDirty {
		t.Errorf("State() = %v, want StateDirty", rm.State())
	}
}

func TestRMReadsFailInErrorState(t *testing.T) {
	rm := NewRM[int]("n")
	rm.Set(42)
	cause := errors.New("boom")
	rm.Fail(cause)

	_, err := rm.Get()
	if _, ok := corerr.As[*corerr.InvalidStateError](err); !ok {
		t.Fatalf("expected an InvalidStateError, got %v (%T)", err, err)
	}
	if rm.Err() != cause {
		t.Errorf("Err() = %v, want %v", rm.Err(), cause)
	}
}

func TestRMReadsFailAfterDestroy(t *testing.T) {
	rm := NewRM[int]("n")
	rm.Set(7)
	rm.Destroy()

	if _, err := rm.Get(); err == nil {
		t.Fatalf("expected Get to fail after Destroy")
	}
	if rm.State() != StateDestroyed {
		t.Errorf("State() = %v, want StateDestroyed", rm.State())
	}
}

func TestRMSetRecoversFromError(t *testing.T) {
	rm := NewRM[int]("n")
	rm.Fail(errors.New("bad"))
	rm.Set(9)

	v, err := rm.Get()
	if err != nil {
		t.Fatalf("unexpected error after Set recovers from Error: %v", err)
	}
	if v != 9 {
		t.Errorf("Get() = %d, want 9", v)
	}
	if rm.Err() != nil {
		t.Errorf("Err() = %v, want nil after recovery", rm.Err())
	}
}
