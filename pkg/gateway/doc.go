/*
Package gateway pushes generation progress to browsers over websocket.

A client connects to /socket with its JWT in the token query parameter,
then subscribes to individual generations:

	→ {"event": "generation:subscribe",   "generationId": "..."}
	→ {"event": "generation:unsubscribe", "generationId": "..."}
	← {"event": "generation:log" | "generation:status" | ..., "data": {...}}

Rooms are per generation. Relay fans an event out to every session in
its room; sessions in other rooms never see it. Each session writes
through a buffered channel drained by a single writer goroutine, so a
slow client drops frames instead of blocking the relay path.
Disconnects remove the session from every room it joined.

The gateway itself is transport only: events originate in the pipeline,
cross processes on the Redis bus, and land here for delivery.
*/
package gateway
