/*Package shadowstore persists shadow documents and owns the merge and
delta arithmetic of the shadow service.

A shadow document stores a desired and a reported state for one thing,
together with a version number that increases by one on every accepted
update. The broker and the REST API both work on this store; notifiers can
be attached to fan out accepted changes (Kafka, S3).

The store requires a postgres database. The document table is a system
table and named "_shadow_".
*/
package shadowstore
