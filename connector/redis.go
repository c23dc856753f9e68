package connector

import (
	"bytes"
	"context"

	"github.com/gomodule/redigo/redis"
	"github.com/whitaker-io/chewdata/document"
	"github.com/whitaker-io/chewdata/record"
	"github.com/whitaker-io/chewdata/updater"
)

// Redis is the key/value connector backed by github.com/gomodule/redigo,
// rounding out the domain stack's cache/store backends alongside the
// document and relational connectors.
type Redis struct {
	pool        *redis.Pool
	key         string
	renderedKey string
	listMode    bool
	updater     *updater.Updater
}

func init() {
	Register("redis", func(config map[string]interface{}) (Connector, error) {
		addr := stringField(config, "address", "localhost:6379")
		pool := &redis.Pool{
			MaxIdle:   3,
			MaxActive: 10,
			Dial: func() (redis.Conn, error) {
				return redis.Dial("tcp", addr)
			},
		}
		return &Redis{
			pool:     pool,
			key:      stringField(config, "key", ""),
			listMode: boolField(config, "list", false),
			updater:  updater.New(),
		}, nil
	})
}

// Path implements Connector.
func (r *Redis) Path() string { return r.key }

// SetParameters implements Connector, re-rendering the key template
// against the incoming record.
func (r *Redis) SetParameters(rec *record.Record) error {
	if !r.IsVariable() {
		return nil
	}
	ctx := record.NewContext(rec)
	rendered, err := r.updater.Render(r.key, ctx)
	if err != nil {
		return err
	}
	r.renderedKey = rendered
	return nil
}

// IsVariable implements Connector.
func (r *Redis) IsVariable() bool { return updater.IsVariable(r.key) }

func (r *Redis) effectiveKey() string {
	if r.renderedKey != "" {
		return r.renderedKey
	}
	return r.key
}

// Fetch implements Connector. In listMode it reads every element of the
// key as a Redis list (LRANGE 0 -1) and leaves the list unchanged,
// otherwise it GETs a single string value.
func (r *Redis) Fetch(ctx context.Context, doc document.Document) (<-chan *record.DataResult, error) {
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return nil, record.NewError(record.ErrorKindConnectorUnavailable, "redis: dial: %v", err)
	}

	out := make(chan *record.DataResult)
	go func() {
		defer close(out)
		defer conn.Close()

		if r.listMode {
			values, err := redis.Strings(conn.Do("LRANGE", r.effectiveKey(), 0, -1))
			if err != nil {
				out <- record.Err(record.NewMap(), record.NewError(record.ErrorKindConnectorUnavailable, "redis: lrange: %v", err))
				return
			}
			for _, v := range values {
				for res := range doc.Decode(bytes.NewReader([]byte(v))) {
					select {
					case out <- res:
					case <-ctx.Done():
						return
					}
				}
			}
			return
		}

		value, err := redis.Bytes(conn.Do("GET", r.effectiveKey()))
		if err == redis.ErrNil {
			return
		}
		if err != nil {
			out <- record.Err(record.NewMap(), record.NewError(record.ErrorKindConnectorUnavailable, "redis: get: %v", err))
			return
		}
		for res := range doc.Decode(bytes.NewReader(value)) {
			select {
			case out <- res:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Send implements Connector. In listMode each record is RPUSHed as a
// separate element, otherwise the last record's encoding SETs the key.
func (r *Redis) Send(ctx context.Context, doc document.Document, records []*record.Record, position *int64) error {
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return record.NewError(record.ErrorKindConnectorUnavailable, "redis: dial: %v", err)
	}
	defer conn.Close()

	for _, rec := range records {
		var buf bytes.Buffer
		if err := doc.EncodeRecord(&buf, rec); err != nil {
			return err
		}
		if r.listMode {
			if _, err := conn.Do("RPUSH", r.effectiveKey(), buf.Bytes()); err != nil {
				return record.NewError(record.ErrorKindConnectorUnavailable, "redis: rpush: %v", err)
			}
			continue
		}
		if _, err := conn.Do("SET", r.effectiveKey(), buf.Bytes()); err != nil {
			return record.NewError(record.ErrorKindConnectorUnavailable, "redis: set: %v", err)
		}
	}
	return nil
}

// Erase implements Connector.
func (r *Redis) Erase(ctx context.Context) error {
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return record.NewError(record.ErrorKindConnectorUnavailable, "redis: dial: %v", err)
	}
	defer conn.Close()
	_, err = conn.Do("DEL", r.effectiveKey())
	if err != nil {
		return record.NewError(record.ErrorKindConnectorUnavailable, "redis: del: %v", err)
	}
	return nil
}

// Len implements Connector.
func (r *Redis) Len(ctx context.Context) (int64, error) {
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()
	if r.listMode {
		return redis.Int64(conn.Do("LLEN", r.effectiveKey()))
	}
	exists, err := redis.Bool(conn.Do("EXISTS", r.effectiveKey()))
	if err != nil {
		return 0, err
	}
	if exists {
		return 1, nil
	}
	return 0, nil
}

// IsEmpty implements Connector.
func (r *Redis) IsEmpty(ctx context.Context) (bool, error) {
	n, err := r.Len(ctx)
	return n == 0, err
}

// Paginator implements Connector.
func (r *Redis) Paginator() (Paginator, error) { return NewOncePaginator(r), nil }

// CloneBox implements Connector. The *redis.Pool is safe for concurrent
// use and shared across clones.
func (r *Redis) CloneBox() Connector {
	clone := *r
	clone.updater = updater.New()
	return &clone
}

// Metadata implements Connector.
func (r *Redis) Metadata() Metadata { return Metadata{MimeSubtype: "json", Path: r.key} }
