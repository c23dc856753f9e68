package connector

import (
	"bytes"
	"context"

	"cloud.google.com/go/pubsub"
	"github.com/whitaker-io/chewdata/document"
	"github.com/whitaker-io/chewdata/record"
)

// PubSub is the Google Cloud Pub/Sub connector, extending the domain
// stack's messaging backends alongside Kafka and SQS.
type PubSub struct {
	client       *pubsub.Client
	projectID    string
	topicID      string
	subscription string
}

func init() {
	Register("pubsub", func(config map[string]interface{}) (Connector, error) {
		projectID := stringField(config, "project_id", "")
		client, err := pubsub.NewClient(context.Background(), projectID)
		if err != nil {
			return nil, record.NewError(record.ErrorKindConnectorUnavailable, "pubsub: client: %v", err)
		}
		return &PubSub{
			client:       client,
			projectID:    projectID,
			topicID:      stringField(config, "topic", ""),
			subscription: stringField(config, "subscription", ""),
		}, nil
	})
}

// Path implements Connector.
func (p *PubSub) Path() string { return p.topicID }

// SetParameters implements Connector: Pub/Sub topics are not templated.
func (p *PubSub) SetParameters(rec *record.Record) error { return nil }

// IsVariable implements Connector.
func (p *PubSub) IsVariable() bool { return false }

// Fetch implements Connector, receiving messages on the configured
// subscription until ctx is cancelled.
func (p *PubSub) Fetch(ctx context.Context, doc document.Document) (<-chan *record.DataResult, error) {
	sub := p.client.Subscription(p.subscription)

	out := make(chan *record.DataResult)
	go func() {
		defer close(out)
		err := sub.Receive(ctx, func(_ context.Context, msg *pubsub.Message) {
			for res := range doc.Decode(bytes.NewReader(msg.Data)) {
				select {
				case out <- res:
				case <-ctx.Done():
					msg.Nack()
					return
				}
			}
			msg.Ack()
		})
		if err != nil && ctx.Err() == nil {
			select {
			case out <- record.Err(record.NewMap(), record.NewError(record.ErrorKindConnectorUnavailable, "pubsub: receive: %v", err)):
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}

// Send implements Connector, publishing each record as a message and
// waiting for every publish result before returning.
func (p *PubSub) Send(ctx context.Context, doc document.Document, records []*record.Record, position *int64) error {
	topic := p.client.Topic(p.topicID)
	defer topic.Stop()

	results := make([]*pubsub.PublishResult, 0, len(records))
	for _, rec := range records {
		var buf bytes.Buffer
		if err := doc.EncodeRecord(&buf, rec); err != nil {
			return err
		}
		results = append(results, topic.Publish(ctx, &pubsub.Message{Data: buf.Bytes()}))
	}
	for _, res := range results {
		if _, err := res.Get(ctx); err != nil {
			return record.NewError(record.ErrorKindConnectorUnavailable, "pubsub: publish: %v", err)
		}
	}
	return nil
}

// Erase implements Connector: Pub/Sub has no notion of clearing a topic's
// backlog other than deleting the subscription, so Erase is a no-op.
func (p *PubSub) Erase(ctx context.Context) error { return nil }

// Len implements Connector: queue depth is not cheaply knowable through
// the client library, so Len reports 0.
func (p *PubSub) Len(ctx context.Context) (int64, error) { return 0, nil }

// IsEmpty implements Connector.
func (p *PubSub) IsEmpty(ctx context.Context) (bool, error) { return false, nil }

// Paginator implements Connector.
func (p *PubSub) Paginator() (Paginator, error) { return NewOncePaginator(p), nil }

// CloneBox implements Connector.
func (p *PubSub) CloneBox() Connector {
	clone := *p
	return &clone
}

// Metadata implements Connector.
func (p *PubSub) Metadata() Metadata { return Metadata{MimeSubtype: "json", Path: p.topicID} }
