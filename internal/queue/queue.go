// Package queue implements the sharded Redis-stream work queue: publish
// with idempotency suppression, consumer-group consume with typed
// retry/backoff, and a dead-letter stream with overflow monitoring,
// grounded exactly in app/queue/backend.py's RedisQueue.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dealwatch/scout/internal/apperr"
	"github.com/dealwatch/scout/internal/metrics"
	"github.com/dealwatch/scout/internal/models"
	"github.com/dealwatch/scout/internal/monitoring"
)

const (
	idempotencyTTL = 24 * time.Hour
	maxRetries     = 5
)

// Handler processes one task. A permanent-kind error (apperr) routes
// straight to the DLQ; any other error is retried with backoff up to
// maxRetries before falling through to the DLQ.
type Handler func(ctx context.Context, task models.TaskPayload) error

// Queue is the sharded stream publish/consume backend.
type Queue struct {
	redis    *redis.Client
	baseName string
	monitor  *monitoring.Notifier
	overflow int64
}

func New(rdb *redis.Client, baseName string, monitor *monitoring.Notifier, overflowThreshold int64) *Queue {
	return &Queue{redis: rdb, baseName: baseName, monitor: monitor, overflow: overflowThreshold}
}

// ShardStream builds "<base>[:site:geoid:category]".
func (q *Queue) ShardStream(site, geoid, category string) string {
	parts := []string{q.baseName}
	if site != "" {
		parts = append(parts, site, orNone(geoid), orNone(category))
	}
	return strings.Join(parts, ":")
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func (q *Queue) ensureGroup(ctx context.Context, stream, group string) error {
	err := q.redis.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("ensure consumer group: %w", err)
	}
	return nil
}

// Publish validates, idempotency-gates, and appends the task onto its
// shard stream (or the shard's DLQ when dlq is true).
func (q *Queue) Publish(ctx context.Context, task models.TaskPayload, dlq bool) error {
	stream := q.ShardStream(task.Site, task.Geoid, task.Category)
	if dlq {
		stream += ":dlq"
	}
	group := stream + ":group"
	if err := q.ensureGroup(ctx, stream, group); err != nil {
		return err
	}

	urlTemplate := task.URLTemplate
	if urlTemplate == "" {
		urlTemplate = task.URL
	}
	idemKey := fmt.Sprintf("%s:%s:%s:%s:%d", task.Site, task.Geoid, task.Category, urlTemplate, task.Page)
	task.IdempotencyKey = idemKey
	idemRedisKey := stream + ":idem:" + idemKey

	added, err := q.redis.SetNX(ctx, idemRedisKey, 1, 0).Result()
	if err != nil {
		return fmt.Errorf("idempotency setnx: %w", err)
	}
	if !added {
		return nil
	}
	q.redis.Expire(ctx, idemRedisKey, idempotencyTTL)

	data, err := json.Marshal(task)
	if err != nil {
		return apperr.Permanent("queue.Publish", fmt.Errorf("marshal task: %w", err))
	}

	values := map[string]any{
		"data":            string(data),
		"idempotency_key": idemKey,
	}
	if task.Retries > 0 {
		values["retries"] = strconv.Itoa(task.Retries)
	}
	if err := q.redis.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: values}).Err(); err != nil {
		return fmt.Errorf("xadd: %w", err)
	}
	return nil
}

// Consume runs the per-shard consume loop of SPEC_FULL.md §4.4 until ctx
// is cancelled. Outcomes: success -> ack+delete; permanent error -> DLQ;
// other error -> retry with exponential backoff up to maxRetries, else DLQ.
func (q *Queue) Consume(ctx context.Context, site, geoid, category, consumerName string, handler Handler) error {
	stream := q.ShardStream(site, geoid, category)
	group := stream + ":group"
	if err := q.ensureGroup(ctx, stream, group); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		res, err := q.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: consumerName,
			Streams:  []string{stream, ">"},
			Count:    1,
			Block:    1 * time.Second,
		}).Result()
		if err == redis.Nil || len(res) == 0 {
			continue
		}
		if err != nil {
			return fmt.Errorf("xreadgroup: %w", err)
		}

		for _, s := range res {
			for _, msg := range s.Messages {
				q.handleMessage(ctx, stream, group, msg, handler)
			}
		}
	}
}

func (q *Queue) handleMessage(ctx context.Context, stream, group string, msg redis.XMessage, handler Handler) {
	defer func() {
		q.redis.XAck(ctx, stream, group, msg.ID)
		q.redis.XDel(ctx, stream, msg.ID)
	}()

	raw, _ := msg.Values["data"].(string)
	retries := 0
	if rv, ok := msg.Values["retries"].(string); ok {
		retries, _ = strconv.Atoi(rv)
	}

	var task models.TaskPayload
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		return
	}
	task.Retries = retries

	err := handler(ctx, task)
	if err == nil {
		return
	}

	if apperr.IsPermanent(err) {
		task.Retries = retries
		_ = q.Publish(ctx, task, true)
		return
	}

	if retries+1 >= maxRetries {
		task.Retries = retries + 1
		_ = q.Publish(ctx, task, true)
		return
	}

	backoff := time.Duration(float64(time.Second)*pow2(retries)) + time.Duration(rand.Float64()*float64(time.Second))
	select {
	case <-time.After(backoff):
	case <-ctx.Done():
		return
	}
	task.Retries = retries + 1
	_ = q.Publish(ctx, task, false)
}

func pow2(n int) float64 {
	v := 1.0
	for i := 0; i < n; i++ {
		v *= 2
	}
	return v
}

// ConsumeDLQ iterates the dead-letter stream analogously to Consume,
// updating the DLQ length gauge and escalating to monitoring on overflow.
func (q *Queue) ConsumeDLQ(ctx context.Context, site, geoid, category, consumerName string, handler Handler) error {
	base := q.ShardStream(site, geoid, category)
	stream := base + ":dlq"
	group := stream + ":group"
	if err := q.ensureGroup(ctx, stream, group); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		res, err := q.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: consumerName,
			Streams:  []string{stream, ">"},
			Count:    1,
			Block:    1 * time.Second,
		}).Result()
		if err == redis.Nil || len(res) == 0 {
			q.reportBacklog(ctx, stream)
			continue
		}
		if err != nil {
			return fmt.Errorf("xreadgroup dlq: %w", err)
		}

		for _, s := range res {
			for _, msg := range s.Messages {
				raw, _ := msg.Values["data"].(string)
				var task models.TaskPayload
				_ = json.Unmarshal([]byte(raw), &task)
				_ = handler(ctx, task)
				q.redis.XAck(ctx, stream, group, msg.ID)
				q.redis.XDel(ctx, stream, msg.ID)
				q.reportBacklog(ctx, stream)
			}
		}
	}
}

func (q *Queue) reportBacklog(ctx context.Context, stream string) {
	backlog, err := q.redis.XLen(ctx, stream).Result()
	if err != nil {
		return
	}
	metrics.DLQLength.WithLabelValues(stream).Set(float64(backlog))
	if q.monitor != nil && backlog > q.overflow {
		q.monitor.Notify(ctx, fmt.Sprintf("DLQ overflow: %d messages on %s", backlog, stream))
	}
}
