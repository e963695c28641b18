package exporter

import "testing"

func TestStartDisabledReturnsNoOpSink(t *testing.T) {
	sink, err := Start(Config{Enabled: false})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := sink.Stop(); err != nil {
		t.Fatalf("Stop on a disabled sink should be a no-op, got %v", err)
	}
}

func TestNilSinkStopIsNoOp(t *testing.T) {
	var s *Sink
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop on a nil sink should be a no-op, got %v", err)
	}
}

func TestParseProfileTypeRejectsUnknown(t *testing.T) {
	if _, err := parseProfileType("bogus"); err == nil {
		t.Fatal("expected an error for an unknown profile type")
	}
}

func TestDefaultProfileTypesAppliedWhenEmpty(t *testing.T) {
	c := Config{}
	got := c.profileTypes()
	if len(got) != 3 {
		t.Fatalf("expected 3 default profile types, got %v", got)
	}
}
