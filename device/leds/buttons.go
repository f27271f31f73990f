package leds

import (
	"context"
	"time"
)

// ButtonHandler receives the channel name of a pressed button. It is
// invoked from the poller's goroutine.
type ButtonHandler func(channel string)

// Buttons polls a set of input pins and reports presses, one button per
// channel. A press fires once per push; the poll interval doubles as
// debounce time.
type Buttons struct {
	pins     map[string]InputPin
	handler  ButtonHandler
	interval time.Duration
	pressed  map[string]bool
}

// NewButtons returns a poller over the given pins, keyed by channel name.
func NewButtons(pins map[string]InputPin, handler ButtonHandler) *Buttons {
	if len(pins) == 0 {
		panic("pins are missing")
	}
	if handler == nil {
		panic("handler is missing")
	}
	return &Buttons{
		pins:     pins,
		handler:  handler,
		interval: 20 * time.Millisecond,
		pressed:  make(map[string]bool, len(pins)),
	}
}

// Run polls until the context is cancelled. It blocks, run it in its own
// goroutine.
func (b *Buttons) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.poll()
		}
	}
}

func (b *Buttons) poll() {
	for channel, pin := range b.pins {
		pressed := pin.Pressed()
		if pressed && !b.pressed[channel] {
			b.handler(channel)
		}
		b.pressed[channel] = pressed
	}
}
