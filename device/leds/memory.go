package leds

import "sync"

// MemoryLED is an in-memory output pin for demos without hardware and for
// tests.
type MemoryLED struct {
	mu     sync.Mutex
	on     bool
	writes int
}

// Set implements the OutputPin interface.
func (l *MemoryLED) Set(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.on = on
	l.writes++
}

// On returns the current value.
func (l *MemoryLED) On() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.on
}

// Writes returns how often the pin was written.
func (l *MemoryLED) Writes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writes
}

// MemoryButton is an in-memory input pin.
type MemoryButton struct {
	mu      sync.Mutex
	pressed bool
}

// Press pushes the button down.
func (b *MemoryButton) Press() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pressed = true
}

// Release lets the button go.
func (b *MemoryButton) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pressed = false
}

// Pressed implements the InputPin interface.
func (b *MemoryButton) Pressed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pressed
}
