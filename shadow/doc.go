/*Package shadow keeps a local device state in sync with a remote shadow document.

A shadow document is a remote JSON record with a "desired" and a "reported"
sub-state and a version number owned by the shadow service. The service
computes a delta whenever desired and reported differ and pushes it to
subscribers.

The package contains the device side of this protocol:

	Store       the last state the reconciler considered authoritative,
	            guarded by a single mutex
	Reconciler  the state machine converting inbound shadow events and
	            local input events into consistent local and remote state

Transport and actuator are external collaborators, consumed through the
Publisher, Subscriber and Device interfaces. The reconciler never holds the
store lock across an outbound publish.

Topic layout, addressed by thing name under a configurable root:

	things/{thing}/shadow/get               -> get/accepted | get/rejected
	things/{thing}/shadow/update            -> update/accepted | update/rejected
	things/{thing}/shadow/update/delta      (service-pushed event)

Message bodies are flat JSON objects keyed by channel name with integer
values.
*/
package shadow
