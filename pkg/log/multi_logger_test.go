package log

import "testing"

func TestMultiLoggerFansOut(t *testing.T) {
	a, b := &captureLogger{}, &captureLogger{}
	m := NewMultiLogger(a, nil, b)

	if m.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", m.Len())
	}

	m.Log(Event{ConnectionID: "x"})
	if len(a.all()) != 1 || len(b.all()) != 1 {
		t.Errorf("fan out = %d/%d", len(a.all()), len(b.all()))
	}
}
