package memory

import (
	"testing"

	"github.com/spaghettifunk/vixen/internal/corerr"
)

func TestReserveBelowSoftLimitDoesNotThrottle(t *testing.T) {
	b := NewBudget(map[Class][2]uint64{ClassDeviceLocal: {1 << 20, 1 << 21}})
	throttle, err := b.Reserve(ClassDeviceLocal, 1024)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if throttle {
		t.Fatalf("throttle = true, want false well under soft limit")
	}
}

func TestReserveAtSoftLimitThrottles(t *testing.T) {
	b := NewBudget(map[Class][2]uint64{ClassDeviceLocal: {256, 1 << 20}})
	throttle, err := b.Reserve(ClassDeviceLocal, 256)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !throttle {
		t.Fatalf("throttle = false, want true at exact soft limit (inclusive)")
	}
}

func TestReserveAtHardLimitSucceeds(t *testing.T) {
	b := NewBudget(map[Class][2]uint64{ClassDeviceLocal: {256, 512}})
	_, err := b.Reserve(ClassDeviceLocal, 512)
	if err != nil {
		t.Fatalf("reserving exactly the hard limit should succeed (inclusive): %v", err)
	}
}

func TestReserveBeyondHardLimitFails(t *testing.T) {
	b := NewBudget(map[Class][2]uint64{ClassDeviceLocal: {256, 512}})
	_, err := b.Reserve(ClassDeviceLocal, 513)
	if err == nil {
		t.Fatalf("expected BudgetExceededError beyond the hard limit")
	}
	if _, ok := corerr.As[*corerr.BudgetExceededError](err); !ok {
		t.Fatalf("expected *BudgetExceededError, got %T", err)
	}
	if b.Used(ClassDeviceLocal) != 0 {
		t.Fatalf("Used() = %d, want 0: a failed reservation must not change accounting", b.Used(ClassDeviceLocal))
	}
}

func TestReleaseReturnsBytesToBudget(t *testing.T) {
	b := NewBudget(map[Class][2]uint64{ClassHostVisible: {1 << 20, 1 << 20}})
	if _, err := b.Reserve(ClassHostVisible, 4096); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	used := b.Used(ClassHostVisible)
	if used == 0 {
		t.Fatalf("expected nonzero usage after Reserve")
	}
	b.Release(ClassHostVisible, 4096)
	if got := b.Used(ClassHostVisible); got != 0 {
		t.Fatalf("Used() = %d after releasing everything reserved, want 0", got)
	}
}

func TestReportedUsageNeverUndercountsActual(t *testing.T) {
	b := NewBudget(map[Class][2]uint64{ClassDeviceLocal: {1 << 20, 1 << 20}})
	// A request not aligned to the reporting granularity must still report
	// at least as much usage as requested (spec.md section 4.2).
	if _, err := b.Reserve(ClassDeviceLocal, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := b.Used(ClassDeviceLocal); got < 1 {
		t.Fatalf("Used() = %d, want >= 1 requested byte", got)
	}
}

func TestUnspecifiedClassDefaultsUnlimited(t *testing.T) {
	b := NewBudget(map[Class][2]uint64{ClassDeviceLocal: {256, 512}})
	_, err := b.Reserve(ClassLazilyAllocated, 1<<40)
	if err != nil {
		t.Fatalf("unspecified class should default to unlimited, got: %v", err)
	}
}

func TestLimitsRoundTrip(t *testing.T) {
	b := NewBudget(map[Class][2]uint64{ClassDeviceLocal: {100, 200}})
	soft, hard := b.Limits(ClassDeviceLocal)
	if soft != 100 || hard != 200 {
		t.Fatalf("Limits() = (%d, %d), want (100, 200)", soft, hard)
	}
}
