package leds

import (
	"github.com/stianeikeland/go-rpio/v4"
)

// OpenGPIO maps the Raspberry Pi GPIO memory. Call once before creating
// pins, and CloseGPIO on shutdown.
func OpenGPIO() error {
	return rpio.Open()
}

// CloseGPIO unmaps the GPIO memory.
func CloseGPIO() error {
	return rpio.Close()
}

// RPiLED is an LED on a Raspberry Pi GPIO pin (BCM numbering).
type RPiLED struct {
	pin rpio.Pin
}

// NewRPiLED configures the pin as output, initially off.
func NewRPiLED(bcm uint8) *RPiLED {
	pin := rpio.Pin(bcm)
	pin.Output()
	pin.Low()
	return &RPiLED{pin: pin}
}

// Set implements the OutputPin interface.
func (l *RPiLED) Set(on bool) {
	if on {
		l.pin.High()
	} else {
		l.pin.Low()
	}
}

// RPiButton is a push button on a Raspberry Pi GPIO pin (BCM numbering),
// wired against ground with the internal pull-up.
type RPiButton struct {
	pin rpio.Pin
}

// NewRPiButton configures the pin as input with pull-up.
func NewRPiButton(bcm uint8) *RPiButton {
	pin := rpio.Pin(bcm)
	pin.Input()
	pin.PullUp()
	return &RPiButton{pin: pin}
}

// Pressed implements the InputPin interface. The pin reads low while the
// button is held.
func (b *RPiButton) Pressed() bool {
	return b.pin.Read() == rpio.Low
}
