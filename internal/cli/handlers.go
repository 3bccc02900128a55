package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/BartekS5/jira2bq/internal/config"
	"github.com/BartekS5/jira2bq/internal/etl"
	"github.com/BartekS5/jira2bq/pkg/database"
	"github.com/BartekS5/jira2bq/pkg/logger"
	"github.com/BartekS5/jira2bq/pkg/secrets"
)

// setup loads the configuration, builds the logger and validates the configuration with
// validate. Nothing here touches the network.
func (a *App) setup(opts *Options, validate func(*config.Config) error) (*config.Config, *slog.Logger, func() error, error) {
	cfg, loadErr := config.Load(opts.ConfigFile, a.Lookup)
	if loadErr != nil {
		cfg = config.Default()
	}
	if opts.SQLFile != "" {
		cfg.SQLFile = opts.SQLFile
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}

	log, closeLog, err := logger.New(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile, Out: a.Out})
	if err != nil {
		return nil, nil, nil, etl.Wrap(etl.KindConfig, "configure logging", err)
	}

	if loadErr != nil {
		log.Error("Invalid configuration", slog.Any("err", loadErr))
		closeLog()
		return nil, nil, nil, etl.Wrap(etl.KindConfig, "load config", loadErr)
	}

	if err := validate(cfg); err != nil {
		missing := config.MissingVars(err)
		for _, name := range missing {
			log.Error("Missing required environment variable", slog.String("name", name))
		}
		if len(missing) == 0 {
			log.Error("Invalid configuration", slog.Any("err", err))
		}
		closeLog()
		return nil, nil, nil, etl.Wrap(etl.KindConfig, "validate config", err)
	}

	return cfg, log, closeLog, nil
}

func (a *App) runExport(ctx context.Context, opts *Options) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, log, closeLog, err := a.setup(opts, (*config.Config).Validate)
	if err != nil {
		return err
	}
	defer closeLog()

	query, err := config.LoadQuery(cfg.SQLFile)
	if err != nil {
		err = etl.Wrap(etl.KindResource, "load query", err)
		log.Error("Failed to load SQL file", slog.String("path", cfg.SQLFile), slog.Any("err", err))
		return err
	}

	gcs := &secrets.GCSResolver{}
	defer gcs.Close()

	descriptor, err := secrets.NewSchemeResolver(gcs).Resolve(ctx, cfg.SourceSecret)
	if err != nil {
		kind := etl.KindConnection
		if errors.Is(err, secrets.ErrEmptySecret) {
			kind = etl.KindConfig
		}
		err = etl.Wrap(kind, "resolve source secret", err)
		log.Error("Failed to resolve source connection", slog.String("scheme", secrets.Scheme(cfg.SourceSecret)), slog.Any("err", err))
		return err
	}

	journal, closeJournal := a.openJournal(ctx, cfg, log)
	defer closeJournal()

	warehouse, err := etl.NewBigQueryWarehouse(ctx, cfg.DestProject, cfg.Location)
	if err != nil {
		err = etl.Wrap(etl.KindDestination, "connect to bigquery", err)
		log.Error("Failed to connect to BigQuery", slog.Any("err", err))
		return err
	}
	defer warehouse.Close()

	extractor := &etl.SQLExtractor{
		Descriptor:     descriptor,
		Query:          query,
		Param:          cfg.ProjectKey,
		ConnectTimeout: cfg.ConnectTimeout,
		Open:           database.ConnectSQL,
		Logger:         log,
	}
	loader := etl.NewBigQueryLoader(warehouse, cfg.MaxNesting, log)

	pipeline := etl.NewPipeline(extractor, loader, journal, log, cfg.ProjectKey)
	_, err = pipeline.Run(ctx, cfg.Target())
	return err
}

// openJournal connects the Mongo run journal when one is configured. A journal that cannot
// be reached is replaced by NopJournal.
func (a *App) openJournal(ctx context.Context, cfg *config.Config, log *slog.Logger) (etl.Journal, func()) {
	if cfg.MongoURI == "" {
		return etl.NopJournal{}, func() {}
	}

	client, err := database.ConnectMongo(ctx, cfg.MongoURI, cfg.ConnectTimeout)
	if err != nil {
		log.Warn("Run journal disabled", slog.Any("err", err))
		return etl.NopJournal{}, func() {}
	}

	return etl.NewMongoJournal(client, cfg.MongoDatabase), func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Disconnect(disconnectCtx); err != nil {
			log.Warn("Failed to disconnect from MongoDB", slog.Any("err", err))
		}
	}
}

func (a *App) runCheck(_ context.Context, opts *Options) error {
	cfg, log, closeLog, err := a.setup(opts, (*config.Config).Validate)
	if err != nil {
		return err
	}
	defer closeLog()

	query, err := config.LoadQuery(cfg.SQLFile)
	if err != nil {
		err = etl.Wrap(etl.KindResource, "load query", err)
		log.Error("Failed to load SQL file", slog.String("path", cfg.SQLFile), slog.Any("err", err))
		return err
	}

	// References are resolved at run time; only literal descriptors can be checked here.
	if scheme := secrets.Scheme(cfg.SourceSecret); scheme == "env" || scheme == "file" || scheme == "gs" {
		log.Info("Source connection is a secret reference", slog.String("scheme", scheme))
	} else {
		desc, err := database.ParseDescriptor(cfg.SourceSecret)
		if err != nil {
			err = etl.Wrap(etl.KindConfig, "parse source descriptor", err)
			log.Error("Invalid source connection", slog.Any("err", err))
			return err
		}
		if _, err := etl.PrepareQuery(desc.Dialect, query); err != nil {
			err = etl.Wrap(etl.KindQuery, "prepare query", err)
			log.Error("Invalid SQL query", slog.String("path", cfg.SQLFile), slog.Any("err", err))
			return err
		}
	}

	log.Info("Configuration OK",
		slog.String("projectKey", cfg.ProjectKey),
		slog.String("target", cfg.Target().String()),
		slog.String("sqlFile", cfg.SQLFile),
	)
	return nil
}

func requireJournal(cfg *config.Config) error {
	if cfg.MongoURI == "" {
		return &config.MissingVarError{Name: config.EnvMongoURI}
	}
	return nil
}

func (a *App) runHistory(ctx context.Context, opts *Options, limit int64) error {
	cfg, log, closeLog, err := a.setup(opts, requireJournal)
	if err != nil {
		return err
	}
	defer closeLog()

	client, err := database.ConnectMongo(ctx, cfg.MongoURI, cfg.ConnectTimeout)
	if err != nil {
		err = etl.Wrap(etl.KindConnection, "connect to journal", err)
		log.Error("Failed to connect to MongoDB", slog.Any("err", err))
		return err
	}
	defer client.Disconnect(context.Background())

	runs, err := etl.NewMongoJournal(client, cfg.MongoDatabase).LastRuns(ctx, cfg.Target(), limit)
	if err != nil {
		err = etl.Wrap(etl.KindConnection, "read journal", err)
		log.Error("Failed to read run history", slog.Any("err", err))
		return err
	}

	w := tabwriter.NewWriter(a.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LOAD ID\tSTARTED\tSTATE\tROWS\tDURATION\tERROR")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			run.LoadID,
			run.StartedAt.Format(time.DateTime),
			run.State,
			run.Rows,
			run.Duration().Round(time.Millisecond),
			run.Error,
		)
	}
	return w.Flush()
}
