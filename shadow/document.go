package shadow

// StateDocument is the desired/reported pair of a shadow document.
type StateDocument struct {
	Desired  State `json:"desired,omitempty"`
	Reported State `json:"reported,omitempty"`
}

// Document is the wire format of a shadow document. It is used both for
// get/update responses from the service and for update requests from the
// device; requests leave Version zero.
type Document struct {
	State       StateDocument `json:"state"`
	Version     uint64        `json:"version,omitempty"`
	ClientToken string        `json:"clientToken,omitempty"`
}

// GetRequest asks the service for the current shadow document.
type GetRequest struct {
	ClientToken string `json:"clientToken,omitempty"`
}

// DeltaEvent is pushed by the service whenever desired and reported state
// differ. State is sparse, it only carries the differing channels.
type DeltaEvent struct {
	State   State  `json:"state"`
	Version uint64 `json:"version,omitempty"`
}

// ErrorResponse is published on the rejected topics.
type ErrorResponse struct {
	Code        int    `json:"code"`
	Message     string `json:"message"`
	ClientToken string `json:"clientToken,omitempty"`
}

// CodeNotFound is the error code for a missing shadow document. It is not
// a failure for the device: the reconciler treats it as first-run bootstrap.
const CodeNotFound = 404
