// ABOUTME: Tests for the synchronous event bus
// ABOUTME: Verifies delivery order, panic containment, and ask/resolve flows
package events

import (
	"testing"
)

func TestEmitDeliversInOrder(t *testing.T) {
	bus := NewBus()

	var got []int
	bus.On(DBImportStart, func(Payload) { got = append(got, 1) })
	bus.On(DBImportStart, func(Payload) { got = append(got, 2) })

	bus.Emit(DBImportStart, Payload{"fileName": "backup.json"})

	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("delivery order = %v, want [1 2]", got)
	}
}

func TestEmitWithoutSubscribersIsNoop(t *testing.T) {
	bus := NewBus()
	bus.Emit(DBExportError, Payload{"error": "nobody listening"})
}

func TestEmitContainsPanic(t *testing.T) {
	bus := NewBus()

	reached := false
	bus.On(DBImportError, func(Payload) { panic("boom") })
	bus.On(DBImportError, func(Payload) { reached = true })

	bus.Emit(DBImportError, Payload{})

	if !reached {
		t.Error("handler after panicking one was not invoked")
	}
}

func TestAskResolved(t *testing.T) {
	bus := NewBus()

	bus.On(DBImportConfirmationNeeded, func(p Payload) {
		resolve, ok := p["resolve"].(func(any))
		if !ok {
			t.Fatal("payload carries no resolver")
		}
		resolve(false)
		resolve(true) // second call must be ignored
	})

	answer := bus.Ask(DBImportConfirmationNeeded, Payload{"file": "x.json"}, true)
	if answer != false {
		t.Errorf("Ask() = %v, want false", answer)
	}
}

func TestAskFallback(t *testing.T) {
	bus := NewBus()

	answer := bus.Ask(DBImportConfirmationNeeded, Payload{}, true)
	if answer != true {
		t.Errorf("Ask() without subscriber = %v, want fallback true", answer)
	}
}
