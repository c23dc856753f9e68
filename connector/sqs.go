package connector

import (
	"bytes"
	"context"
	"strconv"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/whitaker-io/chewdata/document"
	"github.com/whitaker-io/chewdata/record"
)

// SQS is the AWS SQS connector, extending the domain stack's messaging
// backends alongside Kafka and Pub/Sub.
type SQS struct {
	client   *sqs.SQS
	queueURL string
}

func init() {
	Register("sqs", func(config map[string]interface{}) (Connector, error) {
		sess, err := session.NewSession(&aws.Config{Region: aws.String(stringField(config, "region", "us-east-1"))})
		if err != nil {
			return nil, err
		}
		return &SQS{client: sqs.New(sess), queueURL: stringField(config, "queue_url", "")}, nil
	})
}

// Path implements Connector.
func (s *SQS) Path() string { return s.queueURL }

// SetParameters implements Connector: SQS queue URLs are not templated.
func (s *SQS) SetParameters(rec *record.Record) error { return nil }

// IsVariable implements Connector.
func (s *SQS) IsVariable() bool { return false }

// Fetch implements Connector, long-polling ReceiveMessage until ctx is
// cancelled, deleting each message once it has been decoded.
func (s *SQS) Fetch(ctx context.Context, doc document.Document) (<-chan *record.DataResult, error) {
	out := make(chan *record.DataResult)
	go func() {
		defer close(out)
		for {
			resp, err := s.client.ReceiveMessageWithContext(ctx, &sqs.ReceiveMessageInput{
				QueueUrl:            aws.String(s.queueURL),
				MaxNumberOfMessages: aws.Int64(10),
				WaitTimeSeconds:     aws.Int64(10),
			})
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				select {
				case out <- record.Err(record.NewMap(), record.NewError(record.ErrorKindConnectorUnavailable, "sqs: receive: %v", err)):
				case <-ctx.Done():
					return
				}
				continue
			}
			if len(resp.Messages) == 0 {
				select {
				case <-ctx.Done():
					return
				default:
					continue
				}
			}
			for _, msg := range resp.Messages {
				for res := range doc.Decode(bytes.NewReader([]byte(aws.StringValue(msg.Body)))) {
					select {
					case out <- res:
					case <-ctx.Done():
						return
					}
				}
				_, _ = s.client.DeleteMessageWithContext(ctx, &sqs.DeleteMessageInput{
					QueueUrl:      aws.String(s.queueURL),
					ReceiptHandle: msg.ReceiptHandle,
				})
			}
		}
	}()
	return out, nil
}

// Send implements Connector.
func (s *SQS) Send(ctx context.Context, doc document.Document, records []*record.Record, position *int64) error {
	for _, rec := range records {
		var buf bytes.Buffer
		if err := doc.EncodeRecord(&buf, rec); err != nil {
			return err
		}
		_, err := s.client.SendMessageWithContext(ctx, &sqs.SendMessageInput{
			QueueUrl:    aws.String(s.queueURL),
			MessageBody: aws.String(buf.String()),
		})
		if err != nil {
			return record.NewError(record.ErrorKindConnectorUnavailable, "sqs: send: %v", err)
		}
	}
	return nil
}

// Erase implements Connector.
func (s *SQS) Erase(ctx context.Context) error {
	_, err := s.client.PurgeQueueWithContext(ctx, &sqs.PurgeQueueInput{QueueUrl: aws.String(s.queueURL)})
	if err != nil {
		return record.NewError(record.ErrorKindConnectorUnavailable, "sqs: purge: %v", err)
	}
	return nil
}

// Len implements Connector.
func (s *SQS) Len(ctx context.Context) (int64, error) {
	attrs, err := s.client.GetQueueAttributesWithContext(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(s.queueURL),
		AttributeNames: []*string{aws.String("ApproximateNumberOfMessages")},
	})
	if err != nil {
		return 0, err
	}
	if v, ok := attrs.Attributes["ApproximateNumberOfMessages"]; ok {
		n, err := strconv.ParseInt(aws.StringValue(v), 10, 64)
		if err != nil {
			return 0, nil
		}
		return n, nil
	}
	return 0, nil
}

// IsEmpty implements Connector.
func (s *SQS) IsEmpty(ctx context.Context) (bool, error) {
	n, err := s.Len(ctx)
	return n == 0, err
}

// Paginator implements Connector.
func (s *SQS) Paginator() (Paginator, error) { return NewOncePaginator(s), nil }

// CloneBox implements Connector.
func (s *SQS) CloneBox() Connector {
	clone := *s
	return &clone
}

// Metadata implements Connector.
func (s *SQS) Metadata() Metadata { return Metadata{MimeSubtype: "json", Path: s.queueURL} }
