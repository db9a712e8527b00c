package phone

import "testing"

func TestNormalizeE164RegionUsesConfiguredRegion(t *testing.T) {
	got := NormalizeE164Region("020 7946 0958", "GB")
	if got != "+442079460958" {
		t.Fatalf("expected the GB country code, got %q", got)
	}
}

func TestNormalizeE164RegionDefaultsToUS(t *testing.T) {
	got := NormalizeE164Region("(415) 555-2671", "")
	if got != "+14155552671" {
		t.Fatalf("expected the US country code, got %q", got)
	}
}

func TestNormalizeE164RegionKeepsUnparsableInput(t *testing.T) {
	got := NormalizeE164Region("  extension 12  ", "US")
	if got != "extension 12" {
		t.Fatalf("expected the trimmed input back, got %q", got)
	}
}
