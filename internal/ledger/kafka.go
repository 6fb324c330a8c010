package ledger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// Exporter streams ledger entries to a Kafka topic for out-of-process
// consumers. Entries are published in sequence order as JSON, keyed by
// order id so per-order history lands on one partition.
type Exporter struct {
	writer *kafka.Writer
}

func NewExporter(brokers []string, topic string) *Exporter {
	return &Exporter{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// Publish sends one entry.
func (x *Exporter) Publish(ctx context.Context, e Entry) error {
	value, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return x.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.OrderID),
		Value: value,
	})
}

func (x *Exporter) Close() error {
	return x.writer.Close()
}
