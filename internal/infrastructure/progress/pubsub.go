package progress

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/mohammadpnp/product-import/internal/domain/catalog"
	"github.com/mohammadpnp/product-import/internal/logctx"
)

// Subscriber streams progress pushed on the job's channel instead of polling.
// It only sees updates published while the subscription is open, so it seeds
// the stream with the stored snapshot.
type Subscriber struct {
	client *redis.Client
	reader catalog.ProgressReader
}

func NewSubscriber(client *redis.Client, reader catalog.ProgressReader) *Subscriber {
	return &Subscriber{client: client, reader: reader}
}

func (s *Subscriber) Stream(ctx context.Context, jobID string) (<-chan catalog.ProgressEvent, error) {
	sub := s.client.Subscribe(ctx, Channel(jobID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", Channel(jobID), err)
	}

	em := newEmitter()
	go func() {
		defer close(em.out)
		defer sub.Close()

		current := s.reader.Read(ctx, jobID)
		if !em.push(ctx, current) {
			return
		}

		messages := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var update catalog.ProgressUpdate
				if err := json.Unmarshal([]byte(msg.Payload), &update); err != nil {
					logger := logctx.FromContext(ctx)
					logger.Warn().Err(err).Str("job_id", jobID).Msg("discarding undecodable progress message")
					continue
				}
				current = update.Apply(current)
				if !em.push(ctx, current) {
					return
				}
			}
		}
	}()

	return em.out, nil
}
