package stage

import (
	"testing"

	"fitstogo/internal/services/kieai"
)

func TestParseMask_Valid(t *testing.T) {
	raw := `{"x":10,"y":20.5,"width":40,"height":60}`
	mask, err := ParseMask(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mask == nil || mask.Y != 20.5 || mask.Height != 60 {
		t.Fatalf("unexpected mask: %+v", mask)
	}
}

func TestParseMask_Empty(t *testing.T) {
	mask, err := ParseMask("")
	if err != nil {
		t.Fatalf("unexpected error for empty input: %v", err)
	}
	if mask != nil {
		t.Fatalf("expected nil mask for empty input")
	}
}

func TestParseMask_Invalid(t *testing.T) {
	_, err := ParseMask("{invalid json")
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestEncodeMaskRoundTrip(t *testing.T) {
	in := &kieai.Mask{X: 1, Y: 2, Width: 3, Height: 4}
	out, err := ParseMask(EncodeMask(in))
	if err != nil || *out != *in {
		t.Fatalf("round trip mismatch: %+v %v", out, err)
	}
	if EncodeMask(nil) != "" {
		t.Fatal("nil mask should encode empty")
	}
}
