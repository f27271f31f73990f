/*Package broker provides the MQTT broker with device shadow support.

The broker authorizes devices via TLS client certificates and plays the
server side of the shadow protocol:

	things/{thing}/shadow/get       request the current document
	things/{thing}/shadow/update    merge desired and/or reported state

Responses go to the matching accepted/rejected topics. Whenever an accepted
update leaves desired and reported in disagreement, the broker publishes the
difference to things/{thing}/shadow/update/delta.

Republish rules

Two topic rules close the loop for simple demo devices:

A message on {device-root}/{client}/button_state is treated as a desired
state request: it is republished to {device-root}/{client}/led_state/pending
and merged into the client's shadow document as desired state, which in turn
produces a delta event.

Whenever an update carries desired or reported state, that side is
republished to {device-root}/{client}/led_state/desired or
{device-root}/{client}/led_state/reported for observers.

Shadow documents are persisted through the shadowstore package.
*/
package broker
