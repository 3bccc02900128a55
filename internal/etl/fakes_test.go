package etl

import (
	"bufio"
	"context"
	"io"
	"iter"
	"sync"

	"cloud.google.com/go/bigquery"

	"github.com/BartekS5/jira2bq/pkg/models"
)

// sliceStream is an in-memory Stream.
type sliceStream struct {
	columns  []models.Column
	records  []models.Record
	failAt   int
	failWith error

	consumed bool
	closed   int
	count    int64
}

func newSliceStream(columns []models.Column, rows ...[]any) *sliceStream {
	s := &sliceStream{columns: columns, failAt: -1}
	for _, row := range rows {
		rec, err := models.NewRecord(columns, row)
		if err != nil {
			panic(err)
		}
		s.records = append(s.records, rec)
	}
	return s
}

func (s *sliceStream) Columns() []models.Column { return s.columns }
func (s *sliceStream) Count() int64             { return s.count }

func (s *sliceStream) Records() iter.Seq2[models.Record, error] {
	return func(yield func(models.Record, error) bool) {
		if s.consumed {
			yield(models.Record{}, ErrStreamConsumed)
			return
		}
		s.consumed = true
		defer s.Close()

		for i, rec := range s.records {
			if i == s.failAt {
				yield(models.Record{}, s.failWith)
				return
			}
			s.count++
			if !yield(rec, nil) {
				return
			}
		}
	}
}

func (s *sliceStream) Close() error {
	s.closed++
	return nil
}

type fakeExtractor struct {
	stream Stream
	err    error
	calls  int
}

func (f *fakeExtractor) Extract(context.Context) (Stream, error) {
	f.calls++
	return f.stream, f.err
}

// fakeWarehouse keeps tables in memory with BigQuery's truncate-on-load semantics.
type fakeWarehouse struct {
	mu         sync.Mutex
	datasets   map[string]bool
	tables     map[string][]map[string]any
	schemas    map[string]bigquery.Schema
	ensureErr  error
	replaceErr error
	// readNothing makes ReplaceTable fail without consuming its reader.
	readNothing bool
}

func newFakeWarehouse() *fakeWarehouse {
	return &fakeWarehouse{
		datasets: map[string]bool{},
		tables:   map[string][]map[string]any{},
		schemas:  map[string]bigquery.Schema{},
	}
}

func (f *fakeWarehouse) EnsureDataset(_ context.Context, target models.Target) error {
	if f.ensureErr != nil {
		return f.ensureErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.datasets[target.Dataset] = true
	return nil
}

func (f *fakeWarehouse) ReplaceTable(_ context.Context, target models.Target, schema bigquery.Schema, r io.Reader) (int64, error) {
	if f.readNothing {
		return 0, f.replaceErr
	}

	var rows []map[string]any
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var row map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &row); err != nil {
			return 0, err
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	if f.replaceErr != nil {
		return 0, f.replaceErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[target.String()] = rows
	f.schemas[target.String()] = schema
	return int64(len(rows)), nil
}

func (f *fakeWarehouse) table(target models.Target) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tables[target.String()]
}

type fakeJournal struct {
	reports []models.RunReport
	err     error
}

func (f *fakeJournal) Record(_ context.Context, report *models.RunReport) error {
	f.reports = append(f.reports, *report)
	return f.err
}
