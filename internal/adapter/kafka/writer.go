package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/sighting-density-etl/internal/domain"
)

// maxBatch bounds the number of messages handed to one WriteMessages call.
const maxBatch = 500

// Writer publishes cleaned sightings to a Kafka topic, one message per row.
// It implements pipeline.SightingLoader.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the given topic.
func NewWriter(brokers []string, topic string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// LoadSightings serializes and publishes a cleaned table in bounded batches.
// Messages are keyed by the sighting's deterministic ID, so a rerun produces
// the same keys.
func (w *Writer) LoadSightings(ctx context.Context, t domain.SightingTable) error {
	msgs := make([]kafkago.Message, 0, min(len(t.Rows), maxBatch))
	for i := range t.Rows {
		msg, err := serializeToMessage(t.Rows[i])
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
		if len(msgs) == maxBatch {
			if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
				return fmt.Errorf("publish %s sightings: %w", t.Source, err)
			}
			msgs = msgs[:0]
		}
	}
	if len(msgs) > 0 {
		if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
			return fmt.Errorf("publish %s sightings: %w", t.Source, err)
		}
	}
	w.logger.Info("sightings published", "source", t.Source, "topic", w.writer.Topic, "rows", len(t.Rows))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// sightingMessage is the JSON shape of a published sighting.
type sightingMessage struct {
	ID             string            `json:"id"`
	Source         string            `json:"source"`
	State          string            `json:"state"`
	Date           string            `json:"date"`
	Year           int               `json:"year"`
	Month          int               `json:"month"`
	Day            int               `json:"day"`
	Decade         int               `json:"decade"`
	NormPopulation *float64          `json:"norm_population"`
	Fields         map[string]string `json:"fields"`
}

// serializeToMessage marshals a Sighting into a Kafka message.
func serializeToMessage(s domain.Sighting) (kafkago.Message, error) {
	body := sightingMessage{
		ID:     s.ID(),
		Source: s.Source,
		State:  s.State,
		Date:   s.Date.Format(domain.DateOutputLayout),
		Year:   s.Year,
		Month:  s.Month,
		Day:    s.Day,
		Decade: s.Decade,
		Fields: s.Fields,
	}
	if f, ok := s.NormPopulationFloat(); ok {
		body.NormPopulation = &f
	}

	data, err := json.Marshal(body)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize sighting: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(body.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "source", Value: []byte(s.Source)},
			{Key: "decade", Value: []byte(strconv.Itoa(s.Decade))},
		},
	}, nil
}
