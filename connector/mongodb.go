package connector

import (
	"context"

	"github.com/whitaker-io/chewdata/document"
	"github.com/whitaker-io/chewdata/record"
	"github.com/whitaker-io/chewdata/updater"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Mongo is the mongodb connector of spec.md §4.3: find/update over
// go.mongodb.org/mongo-driver/v2.
type Mongo struct {
	client        *mongo.Client
	database      string
	collection    string
	filter        string
	renderedQuery string
	upsert        bool
	updater       *updater.Updater
}

func init() {
	Register("mongodb", func(config map[string]interface{}) (Connector, error) {
		uri := stringField(config, "uri", "mongodb://localhost:27017")
		client, err := mongo.Connect(options.Client().ApplyURI(uri))
		if err != nil {
			return nil, record.NewError(record.ErrorKindConnectorUnavailable, "mongodb: connect: %v", err)
		}
		return &Mongo{
			client:     client,
			database:   stringField(config, "database", ""),
			collection: stringField(config, "collection", ""),
			filter:     stringField(config, "filter", "{}"),
			upsert:     boolField(config, "upsert", true),
			updater:    updater.New(),
		}, nil
	})
}

// Path implements Connector, reporting "<database>.<collection>" as a
// stand-in for a filesystem-style path.
func (m *Mongo) Path() string { return m.database + "." + m.collection }

// SetParameters implements Connector, re-rendering the filter query
// template against the incoming record.
func (m *Mongo) SetParameters(rec *record.Record) error {
	if !m.IsVariable() {
		return nil
	}
	ctx := record.NewContext(rec)
	rendered, err := m.updater.Render(m.filter, ctx)
	if err != nil {
		return err
	}
	m.renderedQuery = rendered
	return nil
}

// IsVariable implements Connector.
func (m *Mongo) IsVariable() bool { return updater.IsVariable(m.filter) }

func (m *Mongo) coll() *mongo.Collection {
	return m.client.Database(m.database).Collection(m.collection)
}

func (m *Mongo) query() string {
	if m.renderedQuery != "" {
		return m.renderedQuery
	}
	return m.filter
}

// Fetch implements Connector.
func (m *Mongo) Fetch(ctx context.Context, doc document.Document) (<-chan *record.DataResult, error) {
	var filter bson.M
	if err := bson.UnmarshalExtJSON([]byte(m.query()), true, &filter); err != nil {
		return nil, record.NewError(record.ErrorKindConfigInvalid, "mongodb: filter: %v", err)
	}

	cursor, err := m.coll().Find(ctx, filter)
	if err != nil {
		return nil, record.NewError(record.ErrorKindConnectorUnavailable, "mongodb: find: %v", err)
	}

	out := make(chan *record.DataResult)
	go func() {
		defer close(out)
		defer cursor.Close(ctx)
		for cursor.Next(ctx) {
			var doc2 bson.M
			if err := cursor.Decode(&doc2); err != nil {
				select {
				case out <- record.Err(record.NewMap(), record.NewError(record.ErrorKindDecodeFailed, "mongodb: decode: %v", err)):
				case <-ctx.Done():
					return
				}
				continue
			}
			rec := record.FromInterface(map[string]interface{}(doc2))
			select {
			case out <- record.Ok(rec):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Send implements Connector: upserts by the templated filter when
// configured, otherwise inserts, per spec.md §4.3.
func (m *Mongo) Send(ctx context.Context, doc document.Document, records []*record.Record, position *int64) error {
	coll := m.coll()
	for _, rec := range records {
		body := rec.ToInterface()
		if m.upsert && m.IsVariable() {
			var filter bson.M
			if err := bson.UnmarshalExtJSON([]byte(m.query()), true, &filter); err != nil {
				return record.NewError(record.ErrorKindConfigInvalid, "mongodb: filter: %v", err)
			}
			opts := options.UpdateOne().SetUpsert(true)
			_, err := coll.UpdateOne(ctx, filter, bson.M{"$set": body}, opts)
			if err != nil {
				return record.NewError(record.ErrorKindConnectorUnavailable, "mongodb: update: %v", err)
			}
			continue
		}
		if _, err := coll.InsertOne(ctx, body); err != nil {
			return record.NewError(record.ErrorKindConnectorUnavailable, "mongodb: insert: %v", err)
		}
	}
	return nil
}

// Erase implements Connector: deletes every document matching the
// configured filter.
func (m *Mongo) Erase(ctx context.Context) error {
	var filter bson.M
	if err := bson.UnmarshalExtJSON([]byte(m.query()), true, &filter); err != nil {
		return record.NewError(record.ErrorKindConfigInvalid, "mongodb: filter: %v", err)
	}
	_, err := m.coll().DeleteMany(ctx, filter)
	if err != nil {
		return record.NewError(record.ErrorKindConnectorUnavailable, "mongodb: delete: %v", err)
	}
	return nil
}

// Len implements Connector.
func (m *Mongo) Len(ctx context.Context) (int64, error) {
	n, err := m.coll().EstimatedDocumentCount(ctx)
	return n, err
}

// IsEmpty implements Connector.
func (m *Mongo) IsEmpty(ctx context.Context) (bool, error) {
	n, err := m.Len(ctx)
	return n == 0, err
}

// Paginator implements Connector.
func (m *Mongo) Paginator() (Paginator, error) { return NewOncePaginator(m), nil }

// CloneBox implements Connector. The *mongo.Client connection pool is
// safe for concurrent use and shared across clones.
func (m *Mongo) CloneBox() Connector {
	clone := *m
	clone.updater = updater.New()
	return &clone
}

// Metadata implements Connector.
func (m *Mongo) Metadata() Metadata {
	return Metadata{MimeSubtype: "bson", Path: m.Path()}
}
