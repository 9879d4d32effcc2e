/*
Package bus moves generation events between processes over Redis
pub/sub.

Workers publish to a single channel, socket:events; every API process
subscribes and forwards each event to its local websocket gateway, which
handles room fan-out. One channel keeps the Redis footprint flat no
matter how many generations run concurrently.

Delivery is fire-and-forget: a payload that fails to decode is logged
and dropped, and a subscriber that disconnects simply misses events
until it reconnects. Clients recover current state from the REST API,
so the stream only needs to be timely, not lossless.
*/
package bus
