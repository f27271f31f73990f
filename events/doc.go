/*Package events fans accepted shadow document changes out to external
systems.

Both notifiers implement the shadowstore.Notifier interface and never block
the store: the Kafka writer runs asynchronously and the S3 archiver uploads
from its own goroutine. Failures are logged, a lost notification does not
fail the shadow operation that produced it.
*/
package events
