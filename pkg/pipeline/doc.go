/*
Package pipeline drives one article generation through its seven stages.

A generation moves from scraped competitor pages to a finished, reviewed
article with SEO metadata. Every stage persists its artifacts before the
next one starts, so a job can be retried or resumed without losing work:

	1. serp        scrape competitors       → paused_after_serp
	2. structure   plan the block skeleton  → paused_after_structure
	3. enrichment  briefs + questions       → paused_after_blocks
	4. answers     knowledge-base lookup    → paused_after_answers
	5. writing     block-by-block prose     → paused_after_writing
	6. links       internal links           (optional, never pauses)
	7. review      fixes + SEO metadata     → paused_after_review

Jobs created with continuous=true run all stages back to back. Otherwise
the runner parks the job at each pause state and a continue request
re-enqueues it with the pause state as the resume point. Resuming from
the final pause state completes the job without re-running the review.

Stage failures persist a failed status and the cause, then surface the
error to the queue layer, which owns the retry policy. The one exception
is link insertion: it degrades to a logged warning because a missing
internal link is not worth losing a finished article over.

Provider clients are built per job from the owner's decrypted
credentials via a ClientFactory. A nil client means the credential is
not configured; each stage checks the clients it needs and fails with a
descriptive error rather than a nil dereference.

Progress and logs stream to subscribers through the event bus as
generation:status, generation:log, generation:blocks,
generation:completed and generation:error events, scoped to the
generation's room.
*/
package pipeline
