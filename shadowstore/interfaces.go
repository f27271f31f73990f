package shadowstore

// Operation is a modifying shadow store operation.
type Operation string

// all supported shadow document operations
const (
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// Notifier is an interface to receive shadow document notifications.
// Implementations must not block; failures are theirs to log.
type Notifier interface {
	Notify(thing string, operation Operation, payload []byte)
}

// MessagePublisher is an interface to publish MQTT messages. The broker
// satisfies it, which lets the REST API push delta events to devices.
type MessagePublisher interface {
	PublishMessageQ1(topic string, payload []byte)
}
