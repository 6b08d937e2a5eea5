// Package progress keeps a short-lived progress snapshot per import job in
// redis and turns it into a stream of events for observers.
package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/mohammadpnp/product-import/internal/domain/catalog"
	"github.com/mohammadpnp/product-import/internal/logctx"
)

const DefaultTTL = 24 * time.Hour

const (
	fieldProcessed = "processed"
	fieldTotal     = "total"
	fieldStatus    = "status"
	fieldError     = "error"
)

func Key(jobID string) string {
	return "upload:" + jobID
}

func Channel(jobID string) string {
	return "progress_" + jobID
}

// RedisStore writes progress as a hash with a sliding expiry and, when publish
// is set, pushes every update on the job's channel.
type RedisStore struct {
	client  redis.Cmdable
	ttl     time.Duration
	publish bool
}

func NewRedisStore(client redis.Cmdable, ttl time.Duration, publish bool) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl, publish: publish}
}

func (s *RedisStore) Report(ctx context.Context, jobID string, update catalog.ProgressUpdate) error {
	if update.Empty() {
		return catalog.ErrEmptyProgressUpdate
	}

	var message []byte
	if s.publish {
		var err error
		message, err = json.Marshal(update)
		if err != nil {
			return fmt.Errorf("encode progress update: %w", err)
		}
	}

	key := Key(jobID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, encodeFields(update))
		pipe.Expire(ctx, key, s.ttl)
		if s.publish {
			pipe.Publish(ctx, Channel(jobID), message)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("set progress %s: %w", key, err)
	}

	logger := logctx.FromContext(ctx)
	logger.Debug().Str("key", key).Interface("update", update).Msg("progress set")
	return nil
}

// Read returns the current snapshot. A missing or expired key, or a backend
// error, yields the pending default.
func (s *RedisStore) Read(ctx context.Context, jobID string) catalog.ProgressSnapshot {
	fields, err := s.client.HGetAll(ctx, Key(jobID)).Result()
	if err != nil {
		logger := logctx.FromContext(ctx)
		logger.Warn().Err(err).Str("job_id", jobID).Msg("read progress failed")
		return decodeFields(nil)
	}
	return decodeFields(fields)
}

func encodeFields(update catalog.ProgressUpdate) map[string]any {
	fields := make(map[string]any, 4)
	if update.Processed != nil {
		fields[fieldProcessed] = strconv.FormatInt(*update.Processed, 10)
	}
	if update.Total != nil {
		fields[fieldTotal] = strconv.FormatInt(*update.Total, 10)
	}
	if update.Status != nil {
		fields[fieldStatus] = string(*update.Status)
	}
	if update.Error != nil {
		fields[fieldError] = *update.Error
	}
	return fields
}

func decodeFields(fields map[string]string) catalog.ProgressSnapshot {
	snap := catalog.ProgressSnapshot{Status: catalog.StatusPending}
	if status := catalog.Status(fields[fieldStatus]); status.Valid() {
		snap.Status = status
	}
	snap.Processed, _ = strconv.ParseInt(fields[fieldProcessed], 10, 64)
	snap.Total, _ = strconv.ParseInt(fields[fieldTotal], 10, 64)
	snap.Error = fields[fieldError]
	return snap
}
