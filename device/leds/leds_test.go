package leds_test

import (
	"context"
	"testing"
	"time"

	"github.com/relabs-tech/shadowsync/device/leds"
	"github.com/relabs-tech/shadowsync/shadow"
)

func newTestPanel() (*leds.Panel, map[string]*leds.MemoryLED) {
	pins := map[string]*leds.MemoryLED{
		"Red":   {},
		"Green": {},
		"Blue":  {},
	}
	outputs := make(map[string]leds.OutputPin, len(pins))
	for channel, pin := range pins {
		outputs[channel] = pin
	}
	return leds.NewPanel(outputs), pins
}

func TestPanelStartsOff(t *testing.T) {
	panel, pins := newTestPanel()
	for channel, pin := range pins {
		if pin.On() {
			t.Errorf("led %s expected to start off", channel)
		}
	}
	if !panel.CurrentState().Equal(shadow.NewState(shadow.DefaultChannels)) {
		t.Fatalf("panel expected to start with the default state, got %v", panel.CurrentState())
	}
}

func TestApplyStateDrivesPins(t *testing.T) {
	panel, pins := newTestPanel()

	err := panel.ApplyState(shadow.State{"Red": 1, "Green": 0, "Blue": 0})
	if err != nil {
		t.Fatal(err)
	}
	if !pins["Red"].On() || pins["Green"].On() || pins["Blue"].On() {
		t.Fatal("only the red led expected to be on")
	}

	err = panel.ApplyState(shadow.State{"Red": 0, "Green": 1, "Blue": 0})
	if err != nil {
		t.Fatal(err)
	}
	if pins["Red"].On() || !pins["Green"].On() {
		t.Fatal("only the green led expected to be on")
	}
}

func TestApplyStateIsIdempotent(t *testing.T) {
	panel, pins := newTestPanel()

	state := shadow.State{"Red": 1, "Green": 0, "Blue": 0}
	if err := panel.ApplyState(state); err != nil {
		t.Fatal(err)
	}
	writes := pins["Red"].Writes()

	// applying the same state again must not touch the pins
	if err := panel.ApplyState(state.Clone()); err != nil {
		t.Fatal(err)
	}
	for channel, pin := range pins {
		if channel == "Red" && pin.Writes() != writes {
			t.Fatal("red pin written again for an unchanged state")
		}
	}
}

func TestApplyStateUnknownChannel(t *testing.T) {
	panel, _ := newTestPanel()
	if err := panel.ApplyState(shadow.State{"Purple": 1}); err == nil {
		t.Fatal("unknown channel expected to be an error")
	}
}

func TestButtonsFireOncePerPress(t *testing.T) {
	button := &leds.MemoryButton{}
	presses := make(chan string, 10)
	buttons := leds.NewButtons(
		map[string]leds.InputPin{"Red": button},
		func(channel string) { presses <- channel },
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go buttons.Run(ctx)

	button.Press()
	select {
	case channel := <-presses:
		if channel != "Red" {
			t.Fatalf("expected Red, got %s", channel)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("press not detected")
	}

	// holding the button must not fire again
	select {
	case <-presses:
		t.Fatal("held button fired a second time")
	case <-time.After(100 * time.Millisecond):
	}

	// release and press again fires again
	button.Release()
	time.Sleep(100 * time.Millisecond)
	button.Press()
	select {
	case <-presses:
	case <-time.After(2 * time.Second):
		t.Fatal("second press not detected")
	}
}
