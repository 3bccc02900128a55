package etl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/BartekS5/jira2bq/pkg/models"
)

var ErrAlreadyRun = errors.New("pipeline has already run")

var transitions = map[models.RunState][]models.RunState{
	models.StateInit:    {models.StateRunning, models.StateFailed},
	models.StateRunning: {models.StateDone, models.StateFailed},
}

// Pipeline runs one extract-and-replace pass. A Pipeline is single use.
type Pipeline struct {
	Extractor  Extractor
	Loader     Loader
	Journal    Journal
	Logger     *slog.Logger
	ProjectKey string

	state models.RunState
	now   func() time.Time
	newID func() string
}

func NewPipeline(ext Extractor, loader Loader, journal Journal, logger *slog.Logger, projectKey string) *Pipeline {
	if journal == nil {
		journal = NopJournal{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		Extractor:  ext,
		Loader:     loader,
		Journal:    journal,
		Logger:     logger,
		ProjectKey: projectKey,
		state:      models.StateInit,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

func (p *Pipeline) State() models.RunState {
	return p.state
}

func (p *Pipeline) transition(to models.RunState) {
	for _, allowed := range transitions[p.state] {
		if allowed == to {
			p.state = to
			return
		}
	}
	panic(fmt.Sprintf("invalid pipeline transition %s -> %s", p.state, to))
}

// Run extracts every record and replaces target with them. The returned report is
// non-nil whenever the run started; err is the single outcome of the run.
func (p *Pipeline) Run(ctx context.Context, target models.Target) (*models.RunReport, error) {
	if p.state != models.StateInit {
		return nil, ErrAlreadyRun
	}

	report := &models.RunReport{
		LoadID:     p.newID(),
		ProjectKey: p.ProjectKey,
		Target:     target,
		StartedAt:  p.now(),
	}
	log := p.Logger.With(slog.String("loadID", report.LoadID))

	p.transition(models.StateRunning)
	report.State = p.state
	log.Info("Starting export",
		slog.String("projectKey", p.ProjectKey),
		slog.String("target", target.String()),
	)

	stream, err := p.Extractor.Extract(ctx)
	if err != nil {
		return p.fail(ctx, log, report, err)
	}
	defer stream.Close()

	for _, col := range stream.Columns() {
		report.Columns = append(report.Columns, col.Name)
	}

	rows, err := p.Loader.Load(ctx, target, stream)
	if err != nil {
		return p.fail(ctx, log, report, err)
	}

	if err := stream.Close(); err != nil {
		log.Warn("Failed to close source connection", slog.Any("err", err))
	}

	p.transition(models.StateDone)
	report.State = p.state
	report.Rows = rows
	report.FinishedAt = p.now()

	rate := 0.0
	if secs := report.Duration().Seconds(); secs > 0 {
		rate = float64(rows) / secs
	}
	log.Info("Export finished successfully",
		slog.Int64("rows", rows),
		slog.Duration("duration", report.Duration()),
		slog.String("rate", fmt.Sprintf("%.2f rows/sec", rate)),
	)

	p.record(ctx, log, report)
	return report, nil
}

func (p *Pipeline) fail(ctx context.Context, log *slog.Logger, report *models.RunReport, err error) (*models.RunReport, error) {
	p.transition(models.StateFailed)
	report.State = p.state
	report.Error = err.Error()
	report.FinishedAt = p.now()

	log.Error("Export failed",
		slog.String("kind", KindOf(err).String()),
		slog.String("target", report.Target.String()),
		slog.Any("err", err),
	)

	p.record(ctx, log, report)
	return report, err
}

func (p *Pipeline) record(ctx context.Context, log *slog.Logger, report *models.RunReport) {
	if err := p.Journal.Record(ctx, report); err != nil {
		log.Warn("Failed to record run in journal", slog.Any("err", err))
	}
}
