package reactloop

import "testing"

func TestEmitterDeliversEvents(t *testing.T) {
	e := NewEventEmitter("run-1", 8)
	e.Emit(EventStepStart, map[string]interface{}{"step": 0})
	e.Close()

	var got []RunEvent
	for event := range e.Events() {
		got = append(got, event)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].Kind != EventStepStart || got[0].RunID != "run-1" {
		t.Errorf("unexpected event: %+v", got[0])
	}
	if got[0].Data["step"] != 0 {
		t.Errorf("expected event data, got %v", got[0].Data)
	}
	if got[0].Timestamp.IsZero() {
		t.Error("expected a timestamp on the event")
	}
}

func TestEmitterDropsWhenFull(t *testing.T) {
	e := NewEventEmitter("run-1", 2)
	for i := 0; i < 5; i++ {
		e.Emit(EventStepStart, nil)
	}
	e.Close()

	count := 0
	for range e.Events() {
		count++
	}
	if count != 2 {
		t.Errorf("expected overflow events dropped, got %d delivered", count)
	}
}

func TestEmitterCloseIsIdempotent(t *testing.T) {
	e := NewEventEmitter("run-1", 2)
	e.Close()
	e.Close()

	// Emitting after close is a silent no-op.
	e.Emit(EventWarning, nil)

	count := 0
	for range e.Events() {
		count++
	}
	if count != 0 {
		t.Errorf("expected no events after close, got %d", count)
	}
}
