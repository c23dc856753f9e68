package connector

import (
	"bytes"
	"context"

	kafka "github.com/segmentio/kafka-go"
	"github.com/whitaker-io/chewdata/document"
	"github.com/whitaker-io/chewdata/record"
)

// Kafka is the message-queue connector backed by
// github.com/segmentio/kafka-go, extending spec.md §4.3's connector roster
// with a streaming broker backend (the domain stack's messaging
// concern, not named explicitly in spec.md's variant list but implied by
// "message queues" in the overview).
type Kafka struct {
	brokers []string
	topic   string
	groupID string
}

func init() {
	Register("kafka", func(config map[string]interface{}) (Connector, error) {
		brokers := []string{stringField(config, "brokers", "localhost:9092")}
		return &Kafka{
			brokers: brokers,
			topic:   stringField(config, "topic", ""),
			groupID: stringField(config, "group_id", "chewdata"),
		}, nil
	})
}

// Path implements Connector.
func (k *Kafka) Path() string { return k.topic }

// SetParameters implements Connector: Kafka topics are not templated.
func (k *Kafka) SetParameters(rec *record.Record) error { return nil }

// IsVariable implements Connector.
func (k *Kafka) IsVariable() bool { return false }

// Fetch implements Connector, consuming messages from the configured
// topic/group until ctx is cancelled.
func (k *Kafka) Fetch(ctx context.Context, doc document.Document) (<-chan *record.DataResult, error) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: k.brokers,
		Topic:   k.topic,
		GroupID: k.groupID,
	})

	out := make(chan *record.DataResult)
	go func() {
		defer close(out)
		defer reader.Close()
		for {
			msg, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				select {
				case out <- record.Err(record.NewMap(), record.NewError(record.ErrorKindConnectorUnavailable, "kafka: read: %v", err)):
				case <-ctx.Done():
					return
				}
				continue
			}
			for res := range doc.Decode(bytes.NewReader(msg.Value)) {
				select {
				case out <- res:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Send implements Connector, producing each record as a message.
func (k *Kafka) Send(ctx context.Context, doc document.Document, records []*record.Record, position *int64) error {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(k.brokers...),
		Topic:    k.topic,
		Balancer: &kafka.LeastBytes{},
	}
	defer writer.Close()

	messages := make([]kafka.Message, 0, len(records))
	for _, rec := range records {
		var buf bytes.Buffer
		if err := doc.EncodeRecord(&buf, rec); err != nil {
			return err
		}
		messages = append(messages, kafka.Message{Value: buf.Bytes()})
	}
	if err := writer.WriteMessages(ctx, messages...); err != nil {
		return record.NewError(record.ErrorKindConnectorUnavailable, "kafka: write: %v", err)
	}
	return nil
}

// Erase implements Connector: Kafka topics are not erasable through the
// consumer/producer API, so Erase is a no-op per spec.md's "not-found is
// non-fatal" latitude.
func (k *Kafka) Erase(ctx context.Context) error { return nil }

// Len implements Connector: message count is not cheaply knowable without
// a dedicated admin client, so Len reports 0.
func (k *Kafka) Len(ctx context.Context) (int64, error) { return 0, nil }

// IsEmpty implements Connector.
func (k *Kafka) IsEmpty(ctx context.Context) (bool, error) { return false, nil }

// Paginator implements Connector.
func (k *Kafka) Paginator() (Paginator, error) { return NewOncePaginator(k), nil }

// CloneBox implements Connector.
func (k *Kafka) CloneBox() Connector {
	clone := *k
	return &clone
}

// Metadata implements Connector.
func (k *Kafka) Metadata() Metadata { return Metadata{MimeSubtype: "json", Path: k.topic} }
