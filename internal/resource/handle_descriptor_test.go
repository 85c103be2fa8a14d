package resource

import "testing"

func TestHandleDescriptorRejectsNonHandleKind(t *testing.T) {
	d := &HandleDescriptor{HandleKind: KindBuffer, Name: "x"}
	if err := d.Validate(); err == nil {
		t.Fatalf("expected error for a ShapeBuffer kind used as a handle descriptor")
	}
}

func TestHandleDescriptorRejectsEmptyName(t *testing.T) {
	d := &HandleDescriptor{HandleKind: KindCommandPool}
	if err := d.Validate(); err == nil {
		t.Fatalf("expected error for empty name")
	}
}

func TestMakeHandleDescriptorBindsOpaquePayload(t *testing.T) {
	v, err := Make(&HandleDescriptor{HandleKind: KindSwapchain, Name: "swapchain", Lifetime: LifetimePersistent})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Shape() != ShapeHandle {
		t.Errorf("Shape() = %v, want ShapeHandle", v.Shape())
	}
	if v.Lifetime() != LifetimePersistent {
		t.Errorf("Lifetime() = %v, want LifetimePersistent", v.Lifetime())
	}

	type payload struct{ Extent uint32 }
	v.Bind(payload{Extent: 1920})
	got, ok := v.Handle().(payload)
	if !ok || got.Extent != 1920 {
		t.Errorf("Handle() did not round-trip the bound payload: %#v", v.Handle())
	}
}
