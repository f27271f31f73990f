/*Package api provides the RESTful interface for the shadow documents.

The API is how operators inspect and edit shadows, the same interaction the
device experiences as delta events. It provides the following routes:

	GET    /things/{thing_name}/shadow
	GET    /things/{thing_name}/shadow/desired
	PUT    /things/{thing_name}/shadow/desired
	GET    /things/{thing_name}/shadow/reported
	PUT    /things/{thing_name}/shadow/reported
	DELETE /things/{thing_name}/shadow

PUT bodies are flat JSON objects keyed by channel name with integer values.
A PUT on the desired side that leaves desired and reported in disagreement
publishes a delta event through the configured message publisher, so
connected devices reconcile immediately.

When a JWT secret is configured, the mutating routes (PUT, DELETE) require
a valid "Authorization: Bearer" token signed with it. Reads stay open.
*/
package api
