/*
Package queue implements the Redis-backed generation job queue and the
worker pool that consumes it.

The queue is a set of plain Redis structures shared by every process in
the cluster:

	queue:generations:waiting       list   FIFO of pending messages
	queue:generations:delayed       zset   retries, scored by due time
	queue:generations:processing    hash   in-flight claims + heartbeats
	queue:generations:completed     list   capped outcome history (100)
	queue:generations:failed        list   capped outcome history (50)
	queue:generations:active_count  int    cluster-wide concurrency gate

Workers BRPOP the waiting list, claim a slot in the processing hash and
heartbeat it every 10 seconds while the handler runs. A failed handler
is rescheduled on the delayed set with exponential backoff (5s, 10s) for
up to three attempts; the pump goroutine moves due retries back to the
waiting list.

Two safety nets cover crashed or partitioned workers. The cluster cap is
a shared counter incremented before a claim and decremented after; a
worker that finds the cluster full pushes the message back and backs
off. The janitor scans the processing hash every 30 seconds and
re-dispatches any claim whose heartbeat is more than 60 seconds old, so
a job abandoned by a dead worker is picked up elsewhere.

Handlers run on a background context: shutting a worker down stops
intake and waits up to 30 seconds for in-flight jobs, but never cancels
them mid-stage. Jobs still running after the drain window are abandoned
to the janitor.
*/
package queue
