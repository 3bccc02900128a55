package etl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/BartekS5/jira2bq/pkg/database"
	"github.com/BartekS5/jira2bq/pkg/models"
)

var ErrStreamConsumed = errors.New("row stream has already been consumed")

// OpenFunc opens the source connection described by descriptor, failing after timeout.
type OpenFunc func(ctx context.Context, descriptor string, timeout time.Duration) (*sql.DB, database.Dialect, error)

// SQLExtractor runs one parameterized query against a relational source.
type SQLExtractor struct {
	Descriptor     string
	Query          string
	Param          string
	ConnectTimeout time.Duration
	Open           OpenFunc
	Logger         *slog.Logger
}

func (s *SQLExtractor) Extract(ctx context.Context) (Stream, error) {
	if s.Param == "" {
		return nil, Wrap(KindConfig, "extract", errors.New("query parameter is empty"))
	}

	desc, err := database.ParseDescriptor(s.Descriptor)
	if err != nil {
		return nil, Wrap(KindConfig, "parse source descriptor", err)
	}

	query, err := PrepareQuery(desc.Dialect, s.Query)
	if err != nil {
		return nil, Wrap(KindQuery, "prepare query", err)
	}

	open := s.Open
	if open == nil {
		open = database.ConnectSQL
	}

	log := s.logger()
	log.Info("Connecting to source database",
		slog.String("source", database.Redact(s.Descriptor)),
		slog.Duration("timeout", s.ConnectTimeout),
	)

	db, _, err := open(ctx, s.Descriptor, s.ConnectTimeout)
	if err != nil {
		return nil, Wrap(KindConnection, "connect to source", err)
	}

	log.Info("Executing query", slog.String("param", s.Param))
	rows, err := db.QueryContext(ctx, query, s.Param)
	if err != nil {
		db.Close()
		return nil, Wrap(KindQuery, "execute query", err)
	}

	columns, err := describeColumns(rows)
	if err != nil {
		rows.Close()
		db.Close()
		return nil, Wrap(KindQuery, "describe result set", err)
	}
	log.Info("Columns found", slog.Int("columns", len(columns)))

	return &RowStream{
		db:      db,
		rows:    rows,
		columns: columns,
		logger:  log,
	}, nil
}

func (s *SQLExtractor) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func describeColumns(rows *sql.Rows) ([]models.Column, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(types))
	columns := make([]models.Column, len(types))
	for i, ct := range types {
		if seen[ct.Name()] {
			return nil, fmt.Errorf("duplicate column name %q in result set", ct.Name())
		}
		seen[ct.Name()] = true

		nullable, ok := ct.Nullable()
		columns[i] = models.Column{
			Name:       ct.Name(),
			SourceType: ct.DatabaseTypeName(),
			Nullable:   nullable || !ok,
		}
	}
	return columns, nil
}

// RowStream reads records from an open result set and owns the connection behind it.
type RowStream struct {
	db      *sql.DB
	rows    *sql.Rows
	columns []models.Column
	logger  *slog.Logger

	consumed bool
	closed   bool
	count    int64
}

func (r *RowStream) Columns() []models.Column {
	return r.columns
}

func (r *RowStream) Count() int64 {
	return r.count
}

func (r *RowStream) Records() iter.Seq2[models.Record, error] {
	return func(yield func(models.Record, error) bool) {
		if r.consumed {
			yield(models.Record{}, ErrStreamConsumed)
			return
		}
		r.consumed = true
		defer r.Close()

		for r.rows.Next() {
			values := make([]any, len(r.columns))
			pointers := make([]any, len(r.columns))
			for i := range values {
				pointers[i] = &values[i]
			}
			if err := r.rows.Scan(pointers...); err != nil {
				yield(models.Record{}, Wrap(KindQuery, "scan row", err))
				return
			}

			record, err := models.NewRecord(r.columns, values)
			if err != nil {
				yield(models.Record{}, Wrap(KindQuery, "build record", err))
				return
			}

			r.count++
			if !yield(record, nil) {
				return
			}
		}

		if err := r.rows.Err(); err != nil {
			yield(models.Record{}, Wrap(KindQuery, "read rows", err))
			return
		}
		r.logger.Info("Rows extracted", slog.Int64("rows", r.count))
	}
}

// Close releases the result set and the source connection. It is safe to call more than once.
func (r *RowStream) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return errors.Join(r.rows.Close(), r.db.Close())
}
