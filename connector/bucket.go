package connector

import (
	"bytes"
	"context"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/whitaker-io/chewdata/document"
	"github.com/whitaker-io/chewdata/record"
	"github.com/whitaker-io/chewdata/updater"
)

// Bucket is the object-store connector of spec.md §4.3, over
// github.com/aws/aws-sdk-go's S3 client. Path templates and wildcards
// resolve by listing keys under the rendered prefix.
type Bucket struct {
	bucket      string
	key         string
	renderedKey string
	region      string
	tags        map[string]*string
	sse         string

	client  *s3.S3
	updater *updater.Updater
}

func init() {
	Register("bucket", func(config map[string]interface{}) (Connector, error) {
		sess, err := session.NewSession(&aws.Config{Region: aws.String(stringField(config, "region", "us-east-1"))})
		if err != nil {
			return nil, err
		}
		tags := map[string]*string{}
		if raw, ok := config["tags"].(map[string]interface{}); ok {
			for k, v := range raw {
				if s, ok := v.(string); ok {
					tags[k] = aws.String(s)
				}
			}
		}
		return &Bucket{
			bucket:  stringField(config, "bucket", ""),
			key:     stringField(config, "key", ""),
			region:  stringField(config, "region", "us-east-1"),
			tags:    tags,
			sse:     stringField(config, "server_side_encryption", ""),
			client:  s3.New(sess),
			updater: updater.New(),
		}, nil
	})
}

// Path implements Connector.
func (b *Bucket) Path() string {
	if b.renderedKey != "" {
		return b.renderedKey
	}
	return b.key
}

// SetParameters implements Connector.
func (b *Bucket) SetParameters(rec *record.Record) error {
	if !b.IsVariable() {
		return nil
	}
	ctx := record.NewContext(rec)
	rendered, err := b.updater.Render(b.key, ctx)
	if err != nil {
		return err
	}
	b.renderedKey = rendered
	return nil
}

// IsVariable implements Connector.
func (b *Bucket) IsVariable() bool { return updater.IsVariable(b.key) }

// listKeys expands a wildcard key into the set of matching object keys by
// listing objects under the key's prefix up to the first wildcard
// character.
func (b *Bucket) listKeys(ctx context.Context) ([]string, error) {
	path := b.Path()
	if !strings.ContainsAny(path, "*?") {
		return []string{path}, nil
	}
	prefix := path[:strings.IndexAny(path, "*?")]

	var keys []string
	err := b.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			keys = append(keys, aws.StringValue(obj.Key))
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Fetch implements Connector.
func (b *Bucket) Fetch(ctx context.Context, doc document.Document) (<-chan *record.DataResult, error) {
	keys, err := b.listKeys(ctx)
	if err != nil {
		return nil, record.NewError(record.ErrorKindConnectorUnavailable, "bucket: list: %v", err)
	}

	out := make(chan *record.DataResult)
	go func() {
		defer close(out)
		for _, key := range keys {
			obj, err := b.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
				Bucket: aws.String(b.bucket),
				Key:    aws.String(key),
			})
			if err != nil {
				select {
				case out <- record.Err(record.NewMap(), record.NewError(record.ErrorKindConnectorUnavailable, "bucket: get %q: %v", key, err)):
				case <-ctx.Done():
					return
				}
				continue
			}
			for res := range doc.Decode(obj.Body) {
				select {
				case out <- res:
				case <-ctx.Done():
					obj.Body.Close()
					return
				}
			}
			obj.Body.Close()
		}
	}()
	return out, nil
}

// Send implements Connector. position is ignored: S3 PutObject always
// replaces the object wholesale.
func (b *Bucket) Send(ctx context.Context, doc document.Document, records []*record.Record, position *int64) error {
	var buf bytes.Buffer
	if err := doc.EncodeHeader(&buf); err != nil {
		return err
	}
	for _, rec := range records {
		if err := doc.EncodeRecord(&buf, rec); err != nil {
			return err
		}
	}
	if err := doc.EncodeFooter(&buf); err != nil {
		return err
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.Path()),
		Body:   bytes.NewReader(buf.Bytes()),
	}
	if len(b.tags) > 0 {
		parts := make([]string, 0, len(b.tags))
		for k, v := range b.tags {
			parts = append(parts, k+"="+aws.StringValue(v))
		}
		input.Tagging = aws.String(strings.Join(parts, "&"))
	}
	if b.sse != "" {
		input.ServerSideEncryption = aws.String(b.sse)
	}

	_, err := b.client.PutObjectWithContext(ctx, input)
	if err != nil {
		return record.NewError(record.ErrorKindConnectorUnavailable, "bucket: put: %v", err)
	}
	return nil
}

// Erase implements Connector; a missing key is not an error.
func (b *Bucket) Erase(ctx context.Context) error {
	_, err := b.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.Path()),
	})
	if err != nil {
		return record.NewError(record.ErrorKindConnectorUnavailable, "bucket: delete: %v", err)
	}
	return nil
}

// Len implements Connector.
func (b *Bucket) Len(ctx context.Context) (int64, error) {
	head, err := b.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.Path()),
	})
	if err != nil {
		return 0, nil
	}
	return aws.Int64Value(head.ContentLength), nil
}

// IsEmpty implements Connector.
func (b *Bucket) IsEmpty(ctx context.Context) (bool, error) {
	n, err := b.Len(ctx)
	return n == 0, err
}

// Paginator implements Connector.
func (b *Bucket) Paginator() (Paginator, error) { return NewOncePaginator(b), nil }

// CloneBox implements Connector. The *s3.S3 client is safe for concurrent
// use and shared across clones.
func (b *Bucket) CloneBox() Connector {
	clone := *b
	clone.updater = updater.New()
	return &clone
}

// Metadata implements Connector.
func (b *Bucket) Metadata() Metadata {
	return Metadata{MimeSubtype: mimeFromExtension(b.Path()), Path: b.Path()}
}
