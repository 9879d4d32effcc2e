package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Makar0n1/art-automation/pkg/log"
	"github.com/Makar0n1/art-automation/pkg/types"
)

// Redis keys backing the generation queue. All workers in the cluster
// share them.
const (
	keyWaiting    = "queue:generations:waiting"
	keyDelayed    = "queue:generations:delayed"
	keyProcessing = "queue:generations:processing"
	keyCompleted  = "queue:generations:completed"
	keyFailed     = "queue:generations:failed"
	keyActive     = "queue:generations:active_count"
)

const (
	maxAttempts        = 3
	retryBackoff       = 5 * time.Second
	completedRetention = 100
	failedRetention    = 50
)

// Queue is the enqueue side, used by the HTTP surface. Messages are
// consumed in insertion order by any worker in the cluster.
type Queue struct {
	rdb *redis.Client
}

// New creates a queue on the given Redis client.
func New(rdb *redis.Client) *Queue {
	return &Queue{rdb: rdb}
}

// Enqueue places one job message at the tail of the queue. continueFrom
// is empty for fresh runs and a pause state for resumes.
func (q *Queue) Enqueue(ctx context.Context, generationID, userID string, continueFrom types.GenerationStatus) error {
	msg := types.QueueMessage{
		GenerationID: generationID,
		UserID:       userID,
		ContinueFrom: continueFrom,
		EnqueuedAt:   time.Now().UTC(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := q.rdb.LPush(ctx, keyWaiting, payload).Err(); err != nil {
		return err
	}
	logger := log.WithGenerationID(generationID)
	logger.Info().
		Str("continue_from", string(continueFrom)).
		Msg("generation enqueued")
	return nil
}

// Stats is a point-in-time snapshot of queue depth.
type Stats struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Stats reads the queue counters.
func (q *Queue) Stats(ctx context.Context) (*Stats, error) {
	pipe := q.rdb.Pipeline()
	waiting := pipe.LLen(ctx, keyWaiting)
	active := pipe.HLen(ctx, keyProcessing)
	completed := pipe.LLen(ctx, keyCompleted)
	failed := pipe.LLen(ctx, keyFailed)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return &Stats{
		Waiting:   waiting.Val(),
		Active:    active.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
	}, nil
}

// Ping checks queue connectivity.
func (q *Queue) Ping(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}
