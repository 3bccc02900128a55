package etl

import (
	"context"
	"iter"

	"github.com/BartekS5/jira2bq/pkg/models"
)

// Stream is the single-pass result of one extraction.
type Stream interface {
	Columns() []models.Column
	// Records yields each row once. The stream is closed when the sequence ends,
	// including when the consumer stops early.
	Records() iter.Seq2[models.Record, error]
	// Count is the number of records yielded so far.
	Count() int64
	Close() error
}

type Extractor interface {
	Extract(ctx context.Context) (Stream, error)
}

type Loader interface {
	// Load replaces the contents of target with the records of stream and returns the
	// number of rows written.
	Load(ctx context.Context, target models.Target, stream Stream) (int64, error)
}

// Journal keeps a record of finished runs.
type Journal interface {
	Record(ctx context.Context, report *models.RunReport) error
}

type NopJournal struct{}

func (NopJournal) Record(context.Context, *models.RunReport) error { return nil }
