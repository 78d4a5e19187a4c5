package consumer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// GroupConfig describes the consumer group shared by every topic reader.
type GroupConfig struct {
	Brokers []string
	GroupID string
	Topics  []string
}

// NewReader builds a group reader for one topic.
func NewReader(cfg GroupConfig, topic string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:         cfg.Brokers,
		GroupID:         cfg.GroupID,
		Topic:           topic,
		MinBytes:        1,
		MaxBytes:        10e6,
		MaxWait:         500 * time.Millisecond,
		CommitInterval:  time.Second,
		StartOffset:     kafka.FirstOffset,
		RetentionTime:   24 * time.Hour,
		ReadLagInterval: -1,
	})
}

// RunGroup runs one Processor per topic and blocks until ctx is cancelled and
// every reader has been closed.
func RunGroup(ctx context.Context, cfg GroupConfig, handler Handler, log zerolog.Logger) {
	var wg sync.WaitGroup
	for _, topic := range cfg.Topics {
		reader := NewReader(cfg, topic)
		topicLog := log.With().Str("topic", topic).Str("group", cfg.GroupID).Logger()
		proc := NewProcessor(reader, handler, WithLogger(topicLog))

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer reader.Close()

			topicLog.Info().Msg("consumer started")
			if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				topicLog.Error().Err(err).Msg("consumer stopped with error")
				return
			}
			topicLog.Info().Msg("consumer stopped")
		}()
	}
	wg.Wait()
}
