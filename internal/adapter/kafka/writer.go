package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/space-weather-engine/internal/config"
	"github.com/couchcryptid/space-weather-engine/internal/fieldlines"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer produces field-line geometry messages to a Kafka topic.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured geometry topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaGeometryTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// PublishGeometry serializes a field-line set and writes it to the topic.
func (w *Writer) PublishGeometry(ctx context.Context, set *fieldlines.Set) error {
	msg, err := serializeGeometry(set)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish geometry %d: %w", set.Version, err)
	}
	w.logger.Debug("geometry published", "version", set.Version, "bytes", len(msg.Value))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeGeometry marshals a field-line set into a Kafka message.
func serializeGeometry(set *fieldlines.Set) (kafkago.Message, error) {
	data, err := json.Marshal(set)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize geometry: %w", err)
	}
	return kafkago.Message{
		Key:   []byte("geometry-" + strconv.FormatUint(set.Version, 10)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "compression", Value: []byte(strconv.FormatFloat(set.Compression, 'f', -1, 64))},
			{Key: "generated_at", Value: []byte(set.GeneratedAt.Format(time.RFC3339))},
		},
	}, nil
}
