package connector

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/whitaker-io/chewdata/document"
	"github.com/whitaker-io/chewdata/record"
	"github.com/whitaker-io/chewdata/updater"
)

// PSQL is the psql connector of spec.md §4.3: SELECT/INSERT over
// github.com/jackc/pgx/v5. The templated query is rendered for reads only;
// Send always issues INSERTs, turned into an upsert by the static
// on_conflict clause when one is configured, and never runs the templated
// query.
type PSQL struct {
	pool          *pgxpool.Pool
	table         string
	query         string
	renderedQuery string
	upsertOnConfl string
	updater       *updater.Updater
}

func init() {
	Register("psql", func(config map[string]interface{}) (Connector, error) {
		dsn := stringField(config, "dsn", "postgres://localhost:5432")
		pool, err := pgxpool.New(context.Background(), dsn)
		if err != nil {
			return nil, record.NewError(record.ErrorKindConnectorUnavailable, "psql: connect: %v", err)
		}
		return &PSQL{
			pool:          pool,
			table:         stringField(config, "table", ""),
			query:         stringField(config, "query", ""),
			upsertOnConfl: stringField(config, "on_conflict", ""),
			updater:       updater.New(),
		}, nil
	})
}

// Path implements Connector.
func (p *PSQL) Path() string { return p.table }

// SetParameters implements Connector.
func (p *PSQL) SetParameters(rec *record.Record) error {
	if !p.IsVariable() {
		return nil
	}
	ctx := record.NewContext(rec)
	rendered, err := p.updater.Render(p.query, ctx)
	if err != nil {
		return err
	}
	p.renderedQuery = rendered
	return nil
}

// IsVariable implements Connector.
func (p *PSQL) IsVariable() bool { return updater.IsVariable(p.query) }

func (p *PSQL) effectiveQuery() string {
	if p.renderedQuery != "" {
		return p.renderedQuery
	}
	if p.query != "" {
		return p.query
	}
	return "SELECT * FROM " + p.table
}

// Fetch implements Connector.
func (p *PSQL) Fetch(ctx context.Context, doc document.Document) (<-chan *record.DataResult, error) {
	rows, err := p.pool.Query(ctx, p.effectiveQuery())
	if err != nil {
		return nil, record.NewError(record.ErrorKindConnectorUnavailable, "psql: query: %v", err)
	}

	out := make(chan *record.DataResult)
	go func() {
		defer close(out)
		defer rows.Close()

		fields := rows.FieldDescriptions()
		for rows.Next() {
			values, err := rows.Values()
			if err != nil {
				select {
				case out <- record.Err(record.NewMap(), record.NewError(record.ErrorKindDecodeFailed, "psql: values: %v", err)):
				case <-ctx.Done():
					return
				}
				continue
			}
			rec := record.NewMap()
			for i, v := range values {
				rec.Set(string(fields[i].Name), record.FromInterface(v))
			}
			select {
			case out <- record.Ok(rec):
			case <-ctx.Done():
				return
			}
		}
		if err := rows.Err(); err != nil {
			out <- record.Err(record.NewMap(), record.NewError(record.ErrorKindConnectorUnavailable, "psql: rows: %v", err))
		}
	}()
	return out, nil
}

// Send implements Connector: inserts each record's fields as a row,
// applying an ON CONFLICT clause when configured, the upsert equivalent
// of Mongo's filter-driven update.
func (p *PSQL) Send(ctx context.Context, doc document.Document, records []*record.Record, position *int64) error {
	batch := &pgx.Batch{}
	for _, rec := range records {
		cols := rec.Keys()
		placeholders := make([]string, len(cols))
		args := make([]interface{}, len(cols))
		for i, c := range cols {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
			args[i] = rec.MapGet(c).ToInterface()
		}
		sql := "INSERT INTO " + p.table + " (" + joinStrings(cols, ",") + ") VALUES (" + joinStrings(placeholders, ",") + ")"
		if p.upsertOnConfl != "" {
			sql += " ON CONFLICT " + p.upsertOnConfl
		}
		batch.Queue(sql, args...)
	}

	br := p.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range records {
		if _, err := br.Exec(); err != nil {
			return record.NewError(record.ErrorKindConnectorUnavailable, "psql: insert: %v", err)
		}
	}
	return nil
}

func joinStrings(items []string, sep string) string {
	out := ""
	for i, s := range items {
		if i > 0 {
			out += sep
		}
		out += s
	}
	return out
}

// Erase implements Connector.
func (p *PSQL) Erase(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, "TRUNCATE TABLE "+p.table)
	if err != nil {
		return record.NewError(record.ErrorKindConnectorUnavailable, "psql: truncate: %v", err)
	}
	return nil
}

// Len implements Connector.
func (p *PSQL) Len(ctx context.Context) (int64, error) {
	var n int64
	err := p.pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+p.table).Scan(&n)
	return n, err
}

// IsEmpty implements Connector.
func (p *PSQL) IsEmpty(ctx context.Context) (bool, error) {
	n, err := p.Len(ctx)
	return n == 0, err
}

// Paginator implements Connector.
func (p *PSQL) Paginator() (Paginator, error) { return NewOncePaginator(p), nil }

// CloneBox implements Connector. The *pgxpool.Pool is safe for concurrent
// use and shared across clones.
func (p *PSQL) CloneBox() Connector {
	clone := *p
	clone.updater = updater.New()
	return &clone
}

// Metadata implements Connector.
func (p *PSQL) Metadata() Metadata { return Metadata{MimeSubtype: "sql", Path: p.table} }
