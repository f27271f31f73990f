package shadow

import "strings"

// DefaultTopicRoot is the root of the shadow service topics.
const DefaultTopicRoot = "things"

// Topics builds the shadow service topic set for one thing.
type Topics struct {
	root  string
	thing string
}

// NewTopics returns the topic set for a thing. An empty root selects
// DefaultTopicRoot.
func NewTopics(root, thing string) Topics {
	if root == "" {
		root = DefaultTopicRoot
	}
	return Topics{root: root, thing: thing}
}

// Thing returns the thing name the topics are addressed to.
func (t Topics) Thing() string { return t.thing }

func (t Topics) prefix() string { return t.root + "/" + t.thing + "/shadow" }

// Get is the request topic for the current shadow document.
func (t Topics) Get() string { return t.prefix() + "/get" }

// GetAccepted carries the response to a get request.
func (t Topics) GetAccepted() string { return t.prefix() + "/get/accepted" }

// GetRejected carries the error response to a get request.
func (t Topics) GetRejected() string { return t.prefix() + "/get/rejected" }

// Update is the request topic for shadow updates.
func (t Topics) Update() string { return t.prefix() + "/update" }

// UpdateAccepted carries the response to an accepted update.
func (t Topics) UpdateAccepted() string { return t.prefix() + "/update/accepted" }

// UpdateRejected carries the error response to a rejected update.
func (t Topics) UpdateRejected() string { return t.prefix() + "/update/rejected" }

// UpdateDelta carries service-pushed delta events.
func (t Topics) UpdateDelta() string { return t.prefix() + "/update/delta" }

// ParseTopic splits an inbound shadow service topic into thing name and
// operation ("get" or "update"). Response and event topics do not parse.
func ParseTopic(root, topic string) (thing string, operation string, ok bool) {
	if root == "" {
		root = DefaultTopicRoot
	}
	rest, found := strings.CutPrefix(topic, root+"/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[1] != "shadow" {
		return "", "", false
	}
	if parts[2] != "get" && parts[2] != "update" {
		return "", "", false
	}
	return parts[0], parts[2], true
}

// DefaultDeviceRoot is the root of the plain device observer topics.
const DefaultDeviceRoot = "demo-device"

// LED state observer topic kinds.
const (
	LEDDesired  = "desired"
	LEDPending  = "pending"
	LEDReported = "reported"
)

// DeviceTopics builds the plain observer topics of one device client.
type DeviceTopics struct {
	root   string
	client string
}

// NewDeviceTopics returns the observer topic set for a client. An empty
// root selects DefaultDeviceRoot.
func NewDeviceTopics(root, client string) DeviceTopics {
	if root == "" {
		root = DefaultDeviceRoot
	}
	return DeviceTopics{root: root, client: client}
}

// ButtonState is where the device publishes requested states on button
// presses. The broker republishes it as a shadow desired update.
func (d DeviceTopics) ButtonState() string {
	return d.root + "/" + d.client + "/button_state"
}

// LEDState returns the led_state observer topic of the given kind, one of
// LEDDesired, LEDPending or LEDReported.
func (d DeviceTopics) LEDState(kind string) string {
	return d.root + "/" + d.client + "/led_state/" + kind
}

// ParseButtonStateTopic extracts the client name from a button_state topic.
func ParseButtonStateTopic(root, topic string) (client string, ok bool) {
	if root == "" {
		root = DefaultDeviceRoot
	}
	rest, found := strings.CutPrefix(topic, root+"/")
	if !found {
		return "", false
	}
	client, found = strings.CutSuffix(rest, "/button_state")
	if !found || strings.Contains(client, "/") || client == "" {
		return "", false
	}
	return client, true
}
