package shadow

// MessageHandler receives an inbound message for a subscribed topic. It is
// invoked from a transport-owned goroutine.
type MessageHandler func(topic string, payload []byte)

// Publisher publishes a message with quality level 1 (at least once).
// Delivery completes asynchronously; implementations log failures.
type Publisher interface {
	PublishQ1(topic string, payload []byte) error
}

// Subscriber subscribes a handler to a topic with quality level 1 and does
// not return before the subscription is acknowledged. The reconciler relies
// on this ordering: response topics must be subscribed before the
// corresponding request is published.
type Subscriber interface {
	SubscribeQ1(topic string, handler MessageHandler) error
}

// Transport is a reliable ordered pub/sub channel with acknowledged
// delivery, typically an MQTT connection.
type Transport interface {
	Publisher
	Subscriber
	// Disconnect closes the connection. Safe to call once.
	Disconnect()
}

// Device is the abstract actuator the reconciler drives.
type Device interface {
	// ApplyState sets the physical outputs. It is idempotent, repeated
	// identical calls have no observable effect.
	ApplyState(state State) error
	// CurrentState returns the current physical output values.
	CurrentState() State
}
