package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/semaphore"

	"github.com/Makar0n1/art-automation/pkg/log"
	"github.com/Makar0n1/art-automation/pkg/metrics"
	"github.com/Makar0n1/art-automation/pkg/types"
)

const (
	popTimeout        = 2 * time.Second
	heartbeatInterval = 10 * time.Second
	stallAfter        = 60 * time.Second
	janitorInterval   = 30 * time.Second
	pumpInterval      = time.Second
	drainTimeout      = 30 * time.Second
	clusterFullDelay  = 2 * time.Second
)

// Handler executes one queue message. A returned error triggers the retry
// policy.
type Handler interface {
	Run(ctx context.Context, msg types.QueueMessage) error
}

// processingRecord is one in-flight claim, stored in the processing hash
// so stalled claims can be re-dispatched by any worker.
type processingRecord struct {
	Message   types.QueueMessage `json:"message"`
	WorkerID  string             `json:"workerId"`
	Heartbeat time.Time          `json:"heartbeat"`
}

// Worker consumes the generation queue. Each worker process serves up to
// concurrency in-flight jobs; the cluster-wide cap is enforced through a
// shared Redis counter.
type Worker struct {
	id            string
	rdb           *redis.Client
	handler       Handler
	concurrency   int
	maxConcurrent int

	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewWorker creates a worker pool with the given per-process concurrency
// and cluster-wide job cap.
func NewWorker(id string, rdb *redis.Client, handler Handler, concurrency, maxConcurrent int) *Worker {
	return &Worker{
		id:            id,
		rdb:           rdb,
		handler:       handler,
		concurrency:   concurrency,
		maxConcurrent: maxConcurrent,
		sem:           semaphore.NewWeighted(int64(concurrency)),
	}
}

// Start launches the intake loop, the delayed-message pump and the stall
// janitor. It returns immediately.
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	go w.intake(ctx)
	go w.pumpDelayed(ctx)
	go w.janitor(ctx)
	go w.reportDepth(ctx)

	logger := log.WithWorkerID(w.id)
	logger.Info().
		Int("concurrency", w.concurrency).
		Int("max_concurrent", w.maxConcurrent).
		Msg("worker started")
}

// Stop pauses intake and waits up to the drain timeout for in-flight jobs
// to finish. Jobs still running after that are abandoned; the stall
// janitor on another worker re-dispatches them.
func (w *Worker) Stop() {
	w.cancel()

	finished := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(finished)
	}()

	logger := log.WithWorkerID(w.id)
	select {
	case <-finished:
		logger.Info().Msg("worker drained")
	case <-time.After(drainTimeout):
		logger.Warn().Msg("worker drain timed out, abandoning in-flight jobs")
	}
}

func (w *Worker) intake(ctx context.Context) {
	logger := log.WithWorkerID(w.id)
	for {
		if err := w.sem.Acquire(ctx, 1); err != nil {
			return
		}

		res, err := w.rdb.BRPop(ctx, popTimeout, keyWaiting).Result()
		if err != nil {
			w.sem.Release(1)
			if ctx.Err() != nil {
				return
			}
			if err != redis.Nil {
				logger.Error().Err(err).Msg("queue pop failed")
				time.Sleep(time.Second)
			}
			continue
		}

		var msg types.QueueMessage
		if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
			w.sem.Release(1)
			logger.Error().Err(err).Msg("dropping malformed queue message")
			continue
		}

		if !w.claimClusterSlot(ctx) {
			// Cluster is at capacity; put the message back at the head and
			// back off.
			w.rdb.RPush(ctx, keyWaiting, res[1])
			w.sem.Release(1)
			time.Sleep(clusterFullDelay)
			continue
		}

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			defer w.sem.Release(1)
			defer w.releaseClusterSlot(context.Background())
			w.process(ctx, msg)
		}()
	}
}

func (w *Worker) claimClusterSlot(ctx context.Context) bool {
	n, err := w.rdb.Incr(ctx, keyActive).Result()
	if err != nil {
		return true // fail open, the local semaphore still bounds us
	}
	if n > int64(w.maxConcurrent) {
		w.rdb.Decr(ctx, keyActive)
		return false
	}
	return true
}

func (w *Worker) releaseClusterSlot(ctx context.Context) {
	if n, err := w.rdb.Decr(ctx, keyActive).Result(); err == nil && n < 0 {
		w.rdb.Set(ctx, keyActive, 0, 0)
	}
}

// process runs one message to completion, heartbeating the claim while the
// handler executes.
func (w *Worker) process(ctx context.Context, msg types.QueueMessage) {
	logger := log.WithWorkerID(w.id).With().Str("generation_id", msg.GenerationID).Logger()
	metrics.QueueActive.Inc()
	defer metrics.QueueActive.Dec()

	w.claim(ctx, msg)
	hbCtx, stopHeartbeat := context.WithCancel(context.Background())
	go w.heartbeat(hbCtx, msg)

	// The job itself is not cancelled on shutdown; it either finishes
	// within the drain timeout or is abandoned and re-dispatched.
	err := w.handler.Run(context.Background(), msg)

	stopHeartbeat()
	w.unclaim(context.Background(), msg)

	if err == nil {
		w.record(context.Background(), keyCompleted, completedRetention, msg, "")
		metrics.QueueCompletedTotal.Inc()
		return
	}

	msg.Attempts++
	if msg.Attempts < maxAttempts {
		backoff := retryBackoff * time.Duration(1<<(msg.Attempts-1))
		logger.Warn().Err(err).
			Int("attempt", msg.Attempts).
			Dur("backoff", backoff).
			Msg("generation failed, scheduling retry")
		metrics.QueueRetriesTotal.Inc()
		w.schedule(context.Background(), msg, backoff)
		return
	}

	logger.Error().Err(err).Int("attempt", msg.Attempts).Msg("generation failed permanently")
	w.record(context.Background(), keyFailed, failedRetention, msg, err.Error())
	metrics.QueueFailedTotal.Inc()
}

func (w *Worker) claim(ctx context.Context, msg types.QueueMessage) {
	rec := processingRecord{Message: msg, WorkerID: w.id, Heartbeat: time.Now().UTC()}
	payload, _ := json.Marshal(rec)
	w.rdb.HSet(ctx, keyProcessing, msg.GenerationID, payload)
}

func (w *Worker) unclaim(ctx context.Context, msg types.QueueMessage) {
	w.rdb.HDel(ctx, keyProcessing, msg.GenerationID)
}

func (w *Worker) heartbeat(ctx context.Context, msg types.QueueMessage) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.claim(context.Background(), msg)
		}
	}
}

// schedule places a retry on the delayed set; the pump moves it to the
// waiting list once due.
func (w *Worker) schedule(ctx context.Context, msg types.QueueMessage, delay time.Duration) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	w.rdb.ZAdd(ctx, keyDelayed, redis.Z{
		Score:  float64(time.Now().Add(delay).UnixMilli()),
		Member: payload,
	})
}

func (w *Worker) pumpDelayed(ctx context.Context) {
	ticker := time.NewTicker(pumpInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := strconv.FormatInt(time.Now().UnixMilli(), 10)
			due, err := w.rdb.ZRangeByScore(ctx, keyDelayed, &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
			if err != nil || len(due) == 0 {
				continue
			}
			for _, member := range due {
				if removed, err := w.rdb.ZRem(ctx, keyDelayed, member).Result(); err != nil || removed == 0 {
					continue // another worker won the race
				}
				w.rdb.LPush(ctx, keyWaiting, member)
			}
		}
	}
}

// janitor re-dispatches claims whose heartbeat went silent.
func (w *Worker) janitor(ctx context.Context) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	logger := log.WithWorkerID(w.id)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			claims, err := w.rdb.HGetAll(ctx, keyProcessing).Result()
			if err != nil {
				continue
			}
			cutoff := time.Now().Add(-stallAfter)
			for id, raw := range claims {
				var rec processingRecord
				if err := json.Unmarshal([]byte(raw), &rec); err != nil {
					w.rdb.HDel(ctx, keyProcessing, id)
					continue
				}
				if rec.Heartbeat.After(cutoff) {
					continue
				}
				if removed, err := w.rdb.HDel(ctx, keyProcessing, id).Result(); err != nil || removed == 0 {
					continue
				}
				payload, _ := json.Marshal(rec.Message)
				w.rdb.LPush(ctx, keyWaiting, payload)
				logger.Warn().
					Str("generation_id", id).
					Str("stalled_worker", rec.WorkerID).
					Msg("re-dispatching stalled generation")
			}
		}
	}
}

func (w *Worker) reportDepth(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := w.rdb.LLen(ctx, keyWaiting).Result(); err == nil {
				metrics.QueueWaiting.Set(float64(n))
			}
		}
	}
}

// record pushes a terminal outcome onto a capped retention list.
func (w *Worker) record(ctx context.Context, key string, retention int64, msg types.QueueMessage, errMsg string) {
	entry := map[string]any{
		"generationId": msg.GenerationID,
		"userId":       msg.UserID,
		"attempts":     msg.Attempts,
		"finishedAt":   time.Now().UTC().Format(time.RFC3339),
	}
	if errMsg != "" {
		entry["error"] = errMsg
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return
	}
	pipe := w.rdb.Pipeline()
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, retention-1)
	if _, err := pipe.Exec(ctx); err != nil {
		logger := log.WithWorkerID(w.id)
		logger.Error().Err(err).Msg(fmt.Sprintf("failed to record outcome on %s", key))
	}
}
