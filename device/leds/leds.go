// Package leds drives a panel of single-color LEDs with one button per
// LED. It implements the actuator side of the shadow reconciler; the
// actual pin work is delegated to a GPIO library (Raspberry Pi) or to
// in-memory pins.
package leds

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/relabs-tech/shadowsync/core/logger"
	"github.com/relabs-tech/shadowsync/shadow"
)

// OutputPin is a single digital output.
type OutputPin interface {
	Set(on bool)
}

// InputPin is a single digital input, active when pressed.
type InputPin interface {
	Pressed() bool
}

// Panel is a set of named LEDs. It satisfies the shadow.Device interface.
// ApplyState is idempotent: pins are only written when their value
// actually changes.
type Panel struct {
	mu    sync.Mutex
	pins  map[string]OutputPin
	state shadow.State
	log   *logrus.Entry
}

// NewPanel returns a panel over the given pins, keyed by channel name.
// All LEDs start off.
func NewPanel(pins map[string]OutputPin) *Panel {
	if len(pins) == 0 {
		panic("pins are missing")
	}
	channels := make([]string, 0, len(pins))
	for c := range pins {
		channels = append(channels, c)
	}
	p := &Panel{
		pins:  pins,
		state: shadow.NewState(channels),
		log:   logger.Default(),
	}
	for _, pin := range pins {
		pin.Set(false)
	}
	return p
}

// ApplyState sets the LEDs to the given state. Channels without a pin are
// an error; channels missing from the state keep their current value.
func (p *Panel) ApplyState(state shadow.State) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for channel, value := range state {
		pin, ok := p.pins[channel]
		if !ok {
			return fmt.Errorf("no led for channel %s", channel)
		}
		if p.state[channel] == value {
			continue
		}
		pin.Set(value > 0)
		p.state[channel] = value
	}
	p.log.Debugln("panel state now", p.state)
	return nil
}

// CurrentState returns the current LED values.
func (p *Panel) CurrentState() shadow.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Clone()
}
