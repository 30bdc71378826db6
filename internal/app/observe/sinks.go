package observe

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"

	"github.com/slotledger/market_layer/pkg/logger"
)

// LogSink writes each observation to the structured log.
type LogSink struct {
	log *logger.Logger
}

var _ Sink = (*LogSink)(nil)

// NewLogSink creates a LogSink.
func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Emit(o Observation) {
	entry := s.log.WithField("kind", string(o.Kind))
	if o.Actor != "" {
		entry = entry.WithField("actor", o.Actor)
	}
	if o.TokenID != "" {
		entry = entry.WithField("token_id", o.TokenID)
	}
	if o.SlotID != "" {
		entry = entry.WithField("slot_id", o.SlotID)
	}
	for k, v := range o.Fields {
		entry = entry.WithField(k, v)
	}
	entry.Info("observation")
}

// RedisSink publishes each observation as JSON to a Redis channel so external
// consumers can follow the stream.
type RedisSink struct {
	client  *redis.Client
	channel string
	log     *logger.Logger
}

var _ Sink = (*RedisSink)(nil)

// NewRedisSink creates a RedisSink publishing to the given channel.
func NewRedisSink(client *redis.Client, channel string, log *logger.Logger) *RedisSink {
	if channel == "" {
		channel = "observations"
	}
	return &RedisSink{client: client, channel: channel, log: log}
}

// Emit publishes the observation. Publish failures are logged and dropped;
// the observation stream never blocks or fails a committed operation.
func (s *RedisSink) Emit(o Observation) {
	payload, err := json.Marshal(o)
	if err != nil {
		s.log.WithError(err).Warn("marshal observation")
		return
	}
	if err := s.client.Publish(context.Background(), s.channel, payload).Err(); err != nil {
		s.log.WithError(err).WithField("kind", string(o.Kind)).Warn("publish observation")
	}
}
