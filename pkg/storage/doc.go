/*
Package storage persists users, projects and generations in a single
bbolt file.

Each entity type lives in its own bucket, keyed by ID. Secondary
lookups (user by email, generations by user or by project) scan their
bucket; record counts are small enough that index buckets would add
write-path bookkeeping for no measurable gain. Writes go through one
Update transaction per operation.

Deleting a project cascades to its generations. Generation reads for an
API caller are scoped to the owner and report a foreign record as
ErrNotFound, the same way a missing one is reported.

Listing generations returns newest first and paginates in memory; the
datasets involved are per-user and small enough that cursor machinery
would be overhead without benefit.

PIN attempt counters also live here so lockouts survive restarts.
*/
package storage
