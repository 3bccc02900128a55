package etl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"cloud.google.com/go/bigquery"
	jsoniter "github.com/json-iterator/go"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/BartekS5/jira2bq/pkg/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Warehouse is the part of BigQuery the loader talks to.
type Warehouse interface {
	EnsureDataset(ctx context.Context, target models.Target) error
	// ReplaceTable loads newline-delimited JSON from r into target, truncating it first.
	// It returns the number of rows BigQuery reports as written.
	ReplaceTable(ctx context.Context, target models.Target, schema bigquery.Schema, r io.Reader) (int64, error)
}

type BigQueryWarehouse struct {
	client   *bigquery.Client
	location string
}

// NewBigQueryWarehouse creates a client billed to projectID; an empty projectID is detected
// from the environment credentials.
func NewBigQueryWarehouse(ctx context.Context, projectID, location string, opts ...option.ClientOption) (*BigQueryWarehouse, error) {
	if projectID == "" {
		projectID = bigquery.DetectProjectID
	}

	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to start bigquery client: %w", err)
	}

	return &BigQueryWarehouse{client: client, location: location}, nil
}

func (w *BigQueryWarehouse) Close() error {
	return w.client.Close()
}

func (w *BigQueryWarehouse) dataset(target models.Target) *bigquery.Dataset {
	if target.Project != "" {
		return w.client.DatasetInProject(target.Project, target.Dataset)
	}
	return w.client.Dataset(target.Dataset)
}

func (w *BigQueryWarehouse) EnsureDataset(ctx context.Context, target models.Target) error {
	ds := w.dataset(target)
	if _, err := ds.Metadata(ctx); err == nil {
		return nil
	} else if !hasStatus(err, http.StatusNotFound) {
		return fmt.Errorf("failed to look up dataset %q: %w", target.Dataset, err)
	}

	err := ds.Create(ctx, &bigquery.DatasetMetadata{Location: w.location})
	if err != nil && !hasStatus(err, http.StatusConflict) {
		return fmt.Errorf("failed to create dataset %q: %w", target.Dataset, err)
	}
	return nil
}

func (w *BigQueryWarehouse) ReplaceTable(ctx context.Context, target models.Target, schema bigquery.Schema, r io.Reader) (int64, error) {
	source := bigquery.NewReaderSource(r)
	source.SourceFormat = bigquery.JSON
	source.Schema = schema

	loader := w.dataset(target).Table(target.Table).LoaderFrom(source)
	loader.WriteDisposition = bigquery.WriteTruncate
	loader.CreateDisposition = bigquery.CreateIfNeeded

	job, err := loader.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to run load job: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to wait for load job: %w", err)
	}

	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("load job %s failed: %w", job.ID(), err)
	}

	if status.Statistics == nil {
		return 0, nil
	}
	if stats, ok := status.Statistics.Details.(*bigquery.LoadStatistics); ok {
		return stats.OutputRows, nil
	}
	return 0, nil
}

func hasStatus(err error, code int) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// BigQueryLoader replaces a BigQuery table with the contents of a stream.
type BigQueryLoader struct {
	Warehouse  Warehouse
	MaxNesting int
	Logger     *slog.Logger
}

func NewBigQueryLoader(w Warehouse, maxNesting int, logger *slog.Logger) *BigQueryLoader {
	return &BigQueryLoader{
		Warehouse:  w,
		MaxNesting: maxNesting,
		Logger:     logger,
	}
}

func (l *BigQueryLoader) Load(ctx context.Context, target models.Target, stream Stream) (int64, error) {
	log := l.Logger
	if log == nil {
		log = slog.Default()
	}

	schema, err := Schema(stream.Columns())
	if err != nil {
		return 0, Wrap(KindQuery, "build destination schema", err)
	}
	rows, err := newRowEncoder(schema, stream.Columns(), l.MaxNesting)
	if err != nil {
		return 0, Wrap(KindQuery, "build destination schema", err)
	}

	log.Info("Ensuring destination dataset", slog.String("target", target.String()))
	if err := l.Warehouse.EnsureDataset(ctx, target); err != nil {
		return 0, Wrap(KindDestination, "ensure dataset", err)
	}

	pr, pw := io.Pipe()
	encodeErr := make(chan error, 1)
	go func() {
		err := encode(pw, rows, stream)
		pw.CloseWithError(err)
		encodeErr <- err
	}()

	log.Info("Loading rows", slog.String("target", target.String()), slog.Int("columns", len(schema)))
	written, loadErr := l.Warehouse.ReplaceTable(ctx, target, schema, pr)
	// Unblock the encoder if the load stopped reading early.
	pr.CloseWithError(io.ErrClosedPipe)
	encErr := <-encodeErr

	if encErr != nil && !errors.Is(encErr, io.ErrClosedPipe) {
		return 0, encErr
	}
	if loadErr != nil {
		return 0, Wrap(KindDestination, "load table", loadErr)
	}
	if encErr != nil {
		return 0, Wrap(KindDestination, "load table", encErr)
	}

	if written != stream.Count() {
		log.Warn("Row count reported by BigQuery differs from rows extracted",
			slog.Int64("written", written),
			slog.Int64("extracted", stream.Count()),
		)
	}
	return written, nil
}

// encode writes one JSON object per record, in stream order.
func encode(w io.Writer, rows *rowEncoder, stream Stream) error {
	buf := bufio.NewWriter(w)
	enc := json.NewEncoder(buf)

	for rec, err := range stream.Records() {
		if err != nil {
			return err
		}

		row, err := rows.toRow(rec)
		if err != nil {
			return Wrap(KindQuery, "convert row", err)
		}
		if err := enc.Encode(row); err != nil {
			return err
		}
	}
	return buf.Flush()
}
