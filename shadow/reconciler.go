package shadow

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/relabs-tech/shadowsync/core/logger"
)

// Phase is the reconciler's position in its state machine.
type Phase int

// Reconciler phases. The regular loop is FetchingInitial -> Synced ->
// Reconciling -> Synced. Disconnected is reachable from any phase,
// Reconnecting leads back into FetchingInitial or Synced depending on
// whether the transport persisted the session.
const (
	PhaseUninitialized Phase = iota
	PhaseFetchingInitial
	PhaseSynced
	PhaseReconciling
	PhaseDisconnected
	PhaseReconnecting
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseFetchingInitial:
		return "fetching-initial"
	case PhaseSynced:
		return "synced"
	case PhaseReconciling:
		return "reconciling"
	case PhaseDisconnected:
		return "disconnected"
	case PhaseReconnecting:
		return "reconnecting"
	}
	return "unknown"
}

// Reconciler applies desired/reported/delta events to the local state and
// decides when to re-publish. Inbound events arrive from a transport-owned
// goroutine, local input events from an input-owned goroutine; both paths
// serialize through the store's mutex. The store lock is never held across
// an outbound publish.
type Reconciler struct {
	log          *logrus.Entry
	store        *Store
	device       Device
	transport    Transport
	topics       Topics
	deviceTopics DeviceTopics
	observer     bool

	phaseMu sync.Mutex
	phase   Phase

	disconnectOnce sync.Once
}

// Builder assembles a Reconciler.
type Builder struct {
	// ThingName addresses the shadow document. This is mandatory.
	ThingName string
	// Device is the actuator to drive. This is mandatory.
	Device Device
	// Transport is the pub/sub channel to the shadow service. This is
	// mandatory.
	Transport Transport
	// Channels declares the device channels. Defaults to DefaultChannels.
	Channels []string
	// TopicRoot is the root of the shadow service topics. Defaults to
	// DefaultTopicRoot.
	TopicRoot string
	// ClientID enables the plain observer topics (button_state) when set.
	ClientID string
	// DeviceRoot is the root of the observer topics. Defaults to
	// DefaultDeviceRoot.
	DeviceRoot string
	// Log is the logger to use. Defaults to the standard logger.
	Log *logrus.Entry
}

// NewReconciler returns a new reconciler in the Uninitialized phase. Call
// Start once the transport is connected.
func NewReconciler(b *Builder) *Reconciler {
	if b.ThingName == "" {
		panic("thing name is missing")
	}
	if b.Device == nil {
		panic("device is missing")
	}
	if b.Transport == nil {
		panic("transport is missing")
	}
	log := b.Log
	if log == nil {
		log = logger.Default()
	}
	return &Reconciler{
		log:          log.WithField("thing", b.ThingName),
		store:        NewStore(b.Channels),
		device:       b.Device,
		transport:    b.Transport,
		topics:       NewTopics(b.TopicRoot, b.ThingName),
		deviceTopics: NewDeviceTopics(b.DeviceRoot, b.ClientID),
		observer:     b.ClientID != "",
		phase:        PhaseUninitialized,
	}
}

// Store returns the reconciler's shadow store.
func (r *Reconciler) Store() *Store { return r.store }

// Phase returns the current phase.
func (r *Reconciler) Phase() Phase {
	r.phaseMu.Lock()
	defer r.phaseMu.Unlock()
	return r.phase
}

func (r *Reconciler) setPhase(p Phase) {
	r.phaseMu.Lock()
	defer r.phaseMu.Unlock()
	if r.phase != p {
		r.log.Debugln("phase", r.phase, "->", p)
		r.phase = p
	}
}

// Start subscribes to the shadow response and event topics and issues the
// initial get request. Every subscription is acknowledged before the get
// is published, otherwise the response could be lost.
func (r *Reconciler) Start() error {
	r.setPhase(PhaseFetchingInitial)
	subscriptions := []struct {
		topic   string
		handler MessageHandler
	}{
		{r.topics.UpdateDelta(), r.onDelta},
		{r.topics.UpdateAccepted(), r.onUpdateAccepted},
		{r.topics.UpdateRejected(), r.onUpdateRejected},
		{r.topics.GetAccepted(), r.onGetAccepted},
		{r.topics.GetRejected(), r.onGetRejected},
	}
	for _, s := range subscriptions {
		if err := r.transport.SubscribeQ1(s.topic, s.handler); err != nil {
			return fmt.Errorf("subscribe to %s: %w", s.topic, err)
		}
	}
	return r.publishGet()
}

// HandleInput reacts to a local input event for one channel, typically a
// button press. The requested state has exactly that channel set and all
// others cleared. Nothing is published when the state is already current;
// otherwise exactly one desired-state update is published and the shadow
// service is expected to answer with a delta.
func (r *Reconciler) HandleInput(channel string) {
	r.setPhase(PhaseReconciling)
	defer r.setPhase(PhaseSynced)

	desired := OneHot(r.store.Channels(), channel)
	changed := r.store.CompareAndReconcile(desired, Source{Kind: SourceLocal})
	if !changed {
		r.log.Debugln("input for", channel, "matches current state, nothing to publish")
		return
	}
	r.log.Infoln("input for", channel, "requests new state")

	if r.observer {
		if payload, err := json.Marshal(desired); err == nil {
			r.publish(r.deviceTopics.ButtonState(), payload)
		}
	}
	r.publishDesired(desired)
}

// HandleInterrupt is called by the transport when the connection drops.
// Local state is kept as is; the transport owns reconnection.
func (r *Reconciler) HandleInterrupt(err error) {
	r.log.Warnln("connection interrupted:", err)
	r.setPhase(PhaseDisconnected)
}

// HandleResume is called by the transport after a reconnect, once all
// previous subscriptions are re-established. When the session was not
// persisted the reconciler starts a fresh initial fetch, otherwise it
// resumes where it was.
func (r *Reconciler) HandleResume(sessionPresent bool) {
	r.setPhase(PhaseReconnecting)
	if sessionPresent {
		r.log.Infoln("connection resumed, session persisted")
		r.setPhase(PhaseSynced)
		return
	}
	r.log.Infoln("connection resumed without session, fetching shadow again")
	if err := r.publishGet(); err != nil {
		r.log.Errorln("get request failed:", err)
	}
}

// Close disconnects the transport. It is guarded to run at most once and is
// safe to call from several goroutines.
func (r *Reconciler) Close() {
	r.disconnectOnce.Do(func() {
		r.log.Infoln("disconnecting")
		r.transport.Disconnect()
		r.setPhase(PhaseDisconnected)
	})
}

func (r *Reconciler) publishGet() error {
	r.setPhase(PhaseFetchingInitial)
	r.store.ResetDeltaGuard()
	payload, err := json.Marshal(GetRequest{ClientToken: uuid.NewString()})
	if err != nil {
		return err
	}
	if err := r.transport.PublishQ1(r.topics.Get(), payload); err != nil {
		return fmt.Errorf("publish get request: %w", err)
	}
	return nil
}

// onGetAccepted processes the initial shadow document. Precedence: a delta
// received while the get was in flight wins over the get's result.
func (r *Reconciler) onGetAccepted(topic string, payload []byte) {
	var doc Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		r.log.Errorln("malformed get response:", err)
		return
	}
	r.log.Infoln("received initial shadow document, version", doc.Version)

	source := Source{Kind: SourceInitialGet, Version: doc.Version}
	channels := r.store.Channels()

	switch {
	case len(doc.State.Desired) > 0:
		state := PatchOverDefault(channels, doc.State.Desired)
		changed := r.store.CompareAndReconcile(state, source)
		if !changed && r.store.DeltaApplied() {
			r.log.Infoln("ignoring initial document, a delta event was already applied")
			return
		}
		r.applyToDevice(state)
		r.publishReported(state)

	case len(doc.State.Reported) > 0:
		state := PatchOverDefault(channels, doc.State.Reported)
		changed := r.store.CompareAndReconcile(state, source)
		if !changed && r.store.DeltaApplied() {
			r.log.Infoln("ignoring initial document, a delta event was already applied")
			return
		}
		// the service already knows this state, adopt it silently
		r.applyToDevice(state)

	default:
		state := NewState(channels)
		changed := r.store.CompareAndReconcile(state, source)
		if !changed && r.store.DeltaApplied() {
			r.log.Infoln("ignoring initial document, a delta event was already applied")
			return
		}
		r.log.Infoln("shadow document carries no state, falling back to defaults")
		r.applyToDevice(state)
		r.publishReported(state)
	}
	r.setPhase(PhaseSynced)
}

// onGetRejected bootstraps the shadow on first run. A missing document is
// not a failure, any other rejection is terminal for the get operation.
func (r *Reconciler) onGetRejected(topic string, payload []byte) {
	var response ErrorResponse
	if err := json.Unmarshal(payload, &response); err != nil {
		r.log.Errorln("malformed get rejection:", err)
		return
	}
	if response.Code != CodeNotFound {
		r.log.Errorf("get request rejected, code %d: %s", response.Code, response.Message)
		return
	}
	r.log.Infoln("thing has no shadow document yet, creating it with defaults")

	state := NewState(r.store.Channels())
	changed := r.store.CompareAndReconcile(state, Source{Kind: SourceInitialGet})
	if !changed && r.store.DeltaApplied() {
		r.log.Infoln("ignoring bootstrap, a delta event was already applied")
		return
	}
	r.applyToDevice(state)
	r.publishReported(state)
	r.setPhase(PhaseSynced)
}

// onDelta applies a service-pushed delta. The delta is a sparse patch over
// the default state: channels missing from the delta reset to their default
// value. The device is driven and a report published even when the store
// value did not change, so a round-tripped local update still settles the
// reported side.
func (r *Reconciler) onDelta(topic string, payload []byte) {
	var event DeltaEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		r.log.Errorln("malformed delta event:", err)
		return
	}
	r.setPhase(PhaseReconciling)

	state := PatchOverDefault(r.store.Channels(), event.State)
	r.log.Infoln("delta event, version", event.Version, "requests", state)
	r.store.CompareAndReconcile(state, Source{Kind: SourceDelta, Version: event.Version})

	r.applyToDevice(state)
	r.publishReported(state)
	r.setPhase(PhaseSynced)
}

func (r *Reconciler) onUpdateAccepted(topic string, payload []byte) {
	var doc Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		r.log.Errorln("malformed update response:", err)
		return
	}
	r.log.Debugln("shadow update accepted, version", doc.Version)
}

// onUpdateRejected logs the failure. Rejected updates are not retried.
func (r *Reconciler) onUpdateRejected(topic string, payload []byte) {
	var response ErrorResponse
	if err := json.Unmarshal(payload, &response); err != nil {
		r.log.Errorln("malformed update rejection:", err)
		return
	}
	r.log.Errorf("shadow update rejected, code %d: %s", response.Code, response.Message)
}

func (r *Reconciler) applyToDevice(state State) {
	if err := r.device.ApplyState(state); err != nil {
		r.log.Errorln("apply state to device:", err)
	}
}

func (r *Reconciler) publishReported(state State) {
	doc := Document{
		State:       StateDocument{Reported: state},
		ClientToken: uuid.NewString(),
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		r.log.Errorln("marshal report:", err)
		return
	}
	r.publish(r.topics.Update(), payload)
}

func (r *Reconciler) publishDesired(state State) {
	doc := Document{
		State:       StateDocument{Desired: state},
		ClientToken: uuid.NewString(),
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		r.log.Errorln("marshal desired state:", err)
		return
	}
	r.publish(r.topics.Update(), payload)
}

func (r *Reconciler) publish(topic string, payload []byte) {
	if err := r.transport.PublishQ1(topic, payload); err != nil {
		r.log.Errorln("publish to", topic, "failed:", err)
	}
}
