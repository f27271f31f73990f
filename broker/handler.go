package broker

import (
	json "github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/relabs-tech/shadowsync/shadow"
	"github.com/relabs-tech/shadowsync/shadowstore"
)

// documentStore is the slice of shadowstore.Store the handler needs.
type documentStore interface {
	Load(thing string) (shadowstore.Record, error)
	Apply(thing string, request shadow.Document) (shadowstore.Record, shadow.State, error)
}

// handler implements the shadow service semantics on top of arriving
// messages. It is transport-agnostic: outbound messages go through the
// publish callback.
type handler struct {
	store      documentStore
	publish    func(topic string, payload []byte)
	topicRoot  string
	deviceRoot string
	log        *logrus.Entry
}

// handleMessage intercepts shadow requests and republish-rule topics.
// All other messages pass through untouched.
func (h *handler) handleMessage(topic string, payload []byte) {
	if thing, operation, ok := shadow.ParseTopic(h.topicRoot, topic); ok {
		switch operation {
		case "get":
			h.handleGet(thing, payload)
		case "update":
			h.handleUpdate(thing, payload)
		}
		return
	}
	if client, ok := shadow.ParseButtonStateTopic(h.deviceRoot, topic); ok {
		h.handleButtonState(client, payload)
	}
}

func (h *handler) handleGet(thing string, payload []byte) {
	topics := shadow.NewTopics(h.topicRoot, thing)

	var request shadow.GetRequest
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &request); err != nil {
			h.log.Warnln("malformed get request for", thing, ":", err)
			h.reject(topics.GetRejected(), 400, "invalid json data", request.ClientToken)
			return
		}
	}

	record, err := h.store.Load(thing)
	if err == shadowstore.ErrNotFound {
		h.log.Infoln("no shadow document for", thing)
		h.reject(topics.GetRejected(), shadow.CodeNotFound, "no shadow document exists for "+thing, request.ClientToken)
		return
	}
	if err != nil {
		h.log.Errorln("load shadow document for", thing, ":", err)
		h.reject(topics.GetRejected(), 500, "internal error", request.ClientToken)
		return
	}

	document := record.Document()
	document.ClientToken = request.ClientToken
	h.publishJSON(topics.GetAccepted(), document)
}

func (h *handler) handleUpdate(thing string, payload []byte) {
	topics := shadow.NewTopics(h.topicRoot, thing)

	if err := shadowstore.ValidateUpdate(payload); err != nil {
		h.log.Warnln("rejected update for", thing, ":", err)
		h.reject(topics.UpdateRejected(), 400, err.Error(), clientToken(payload))
		return
	}
	var request shadow.Document
	if err := json.Unmarshal(payload, &request); err != nil {
		h.log.Warnln("rejected update for", thing, ":", err)
		h.reject(topics.UpdateRejected(), 400, "invalid json data", "")
		return
	}

	record, delta, err := h.store.Apply(thing, request)
	if err != nil {
		h.log.Errorln("apply shadow update for", thing, ":", err)
		h.reject(topics.UpdateRejected(), 500, "internal error", request.ClientToken)
		return
	}
	h.log.Infoln("shadow update for", thing, "accepted, version", record.Version)

	document := record.Document()
	document.ClientToken = request.ClientToken
	h.publishJSON(topics.UpdateAccepted(), document)

	if len(delta) > 0 {
		h.publishJSON(topics.UpdateDelta(), shadow.DeltaEvent{
			State:   delta,
			Version: record.Version,
		})
	}

	// republish rules: both sides of the update go out to the led_state
	// observers
	deviceTopics := shadow.NewDeviceTopics(h.deviceRoot, thing)
	if len(request.State.Desired) > 0 {
		h.publishJSON(deviceTopics.LEDState(shadow.LEDDesired), request.State.Desired)
	}
	if len(request.State.Reported) > 0 {
		h.publishJSON(deviceTopics.LEDState(shadow.LEDReported), request.State.Reported)
	}
}

// handleButtonState is the republish rule for button presses: the payload
// becomes the pending led_state and the desired side of the client's shadow
// document.
func (h *handler) handleButtonState(client string, payload []byte) {
	var requested shadow.State
	if err := json.Unmarshal(payload, &requested); err != nil {
		h.log.Warnln("malformed button state from", client, ":", err)
		return
	}

	deviceTopics := shadow.NewDeviceTopics(h.deviceRoot, client)
	h.publishJSON(deviceTopics.LEDState(shadow.LEDPending), requested)

	update, err := json.Marshal(shadow.Document{
		State: shadow.StateDocument{Desired: requested},
	})
	if err != nil {
		h.log.Errorln("marshal desired update for", client, ":", err)
		return
	}
	h.handleUpdate(client, update)
}

func (h *handler) reject(topic string, code int, message, token string) {
	h.publishJSON(topic, shadow.ErrorResponse{
		Code:        code,
		Message:     message,
		ClientToken: token,
	})
}

func (h *handler) publishJSON(topic string, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		h.log.Errorln("marshal message for", topic, ":", err)
		return
	}
	h.publish(topic, payload)
}

// clientToken pulls the client token out of a payload that failed schema
// validation, so the rejection can still be correlated.
func clientToken(payload []byte) string {
	var probe struct {
		ClientToken string `json:"clientToken"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return ""
	}
	return probe.ClientToken
}
