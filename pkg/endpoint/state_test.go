package endpoint

import "testing"

func TestStateTransitions(t *testing.T) {
	cases := []struct {
		state              State
		canStart, canStop, canDestroy bool
	}{
		{StateCreated, true, false, true},
		{StateStarting, false, true, true},
		{StateStarted, false, true, true},
		{StateStopping, false, false, true},
		{StateStopped, true, false, true},
		{StateDestroyed, false, false, false},
	}
	for _, c := range cases {
		if got := c.state.CanStart(); got != c.canStart {
			t.Errorf("%v.CanStart() = %v, want %v", c.state, got, c.canStart)
		}
		if got := c.state.CanStop(); got != c.canStop {
			t.Errorf("%v.CanStop() = %v, want %v", c.state, got, c.canStop)
		}
		if got := c.state.CanDestroy(); got != c.canDestroy {
			t.Errorf("%v.CanDestroy() = %v, want %v", c.state, got, c.canDestroy)
		}
	}
}

func TestStateIsRunning(t *testing.T) {
	if !StateStarted.IsRunning() {
		t.Error("StateStarted should be running")
	}
	if StateStarting.IsRunning() {
		t.Error("StateStarting should not be running")
	}
}

func TestStateString(t *testing.T) {
	if StateCreated.String() != "Created" {
		t.Errorf("got %q", StateCreated.String())
	}
	if State(99).String() != "Unknown" {
		t.Errorf("got %q for unknown state", State(99).String())
	}
}
