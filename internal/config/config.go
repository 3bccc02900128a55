// Package config loads the run configuration from environment variables
// (populated from .env by main.go) and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BartekS5/jira2bq/pkg/models"
)

const (
	EnvSourceSecret   = "PG_URL_SECRET"
	EnvProjectKey     = "JIRA_PROJECT_KEY"
	EnvDataset        = "BQ_DATASET_ID"
	EnvTable          = "BQ_TABLE_ID"
	EnvDestProject    = "BQ_PROJECT_ID"
	EnvLocation       = "BQ_LOCATION"
	EnvMaxNesting     = "BQ_MAX_NESTING"
	EnvSQLFile        = "SQL_FILE"
	EnvConnectTimeout = "SOURCE_CONNECT_TIMEOUT"
	EnvLogLevel       = "LOG_LEVEL"
	EnvLogFile        = "LOG_FILE"
	EnvMongoURI       = "MONGO_CONNECTION_STRING"
	EnvMongoDatabase  = "MONGO_DATABASE"
)

const (
	DefaultDataset        = "jira_export"
	DefaultTable          = "issues"
	DefaultSQLFile        = "request.sql"
	DefaultMaxNesting     = 2
	DefaultConnectTimeout = 10 * time.Second
	DefaultMongoDatabase  = "jira2bq"
)

// Config holds all configuration for one run.
type Config struct {
	SourceSecret   string        `yaml:"pg_url_secret"`
	ProjectKey     string        `yaml:"jira_project_key"`
	Dataset        string        `yaml:"bq_dataset_id"`
	Table          string        `yaml:"bq_table_id"`
	DestProject    string        `yaml:"bq_project_id"`
	Location       string        `yaml:"bq_location"`
	MaxNesting     int           `yaml:"bq_max_nesting"`
	SQLFile        string        `yaml:"sql_file"`
	ConnectTimeout time.Duration `yaml:"source_connect_timeout"`
	LogLevel       string        `yaml:"log_level"`
	LogFile        string        `yaml:"log_file"`
	MongoURI       string        `yaml:"mongo_connection_string"`
	MongoDatabase  string        `yaml:"mongo_database"`
}

// MissingVarError reports one required setting that is absent or empty.
type MissingVarError struct {
	Name string
}

func (e *MissingVarError) Error() string {
	return fmt.Sprintf("%s is not set", e.Name)
}

type InvalidVarError struct {
	Name  string
	Value string
	Err   error
}

func (e *InvalidVarError) Error() string {
	return fmt.Sprintf("%s has an invalid value %q: %v", e.Name, e.Value, e.Err)
}

func (e *InvalidVarError) Unwrap() error {
	return e.Err
}

func Default() *Config {
	return &Config{
		Dataset:        DefaultDataset,
		Table:          DefaultTable,
		SQLFile:        DefaultSQLFile,
		MaxNesting:     DefaultMaxNesting,
		ConnectTimeout: DefaultConnectTimeout,
		MongoDatabase:  DefaultMongoDatabase,
	}
}

// Load builds a Config from defaults, then the YAML file at path (optional), then the variables
// visible through lookup. A variable that is set but empty overrides the default with "".
// Load does not validate; call Validate before doing any I/O.
func Load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if path != "" {
		bytes, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
		}
		if err := yaml.Unmarshal(bytes, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file '%s': %w", path, err)
		}
	}

	var errs []error
	for _, b := range bindings {
		val, ok := lookup(b.name)
		if !ok {
			continue
		}
		if err := b.set(cfg, val); err != nil {
			errs = append(errs, &InvalidVarError{Name: b.name, Value: val, Err: err})
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return cfg, nil
}

// Validate returns one MissingVarError per required setting that is empty, joined together.
func (c *Config) Validate() error {
	var errs []error
	for _, req := range []struct {
		name  string
		value string
	}{
		{EnvSourceSecret, c.SourceSecret},
		{EnvProjectKey, c.ProjectKey},
		{EnvDataset, c.Dataset},
		{EnvTable, c.Table},
		{EnvSQLFile, c.SQLFile},
	} {
		if req.value == "" {
			errs = append(errs, &MissingVarError{Name: req.name})
		}
	}

	if c.MaxNesting < 0 {
		errs = append(errs, &InvalidVarError{Name: EnvMaxNesting, Value: strconv.Itoa(c.MaxNesting), Err: errors.New("must not be negative")})
	}
	if c.ConnectTimeout <= 0 {
		errs = append(errs, &InvalidVarError{Name: EnvConnectTimeout, Value: c.ConnectTimeout.String(), Err: errors.New("must be positive")})
	}

	return errors.Join(errs...)
}

// MissingVars lists the names carried by MissingVarErrors inside err.
func MissingVars(err error) []string {
	var names []string
	walk(err, func(e error) {
		var missing *MissingVarError
		if errors.As(e, &missing) {
			names = append(names, missing.Name)
		}
	})
	return names
}

func walk(err error, fn func(error)) {
	if err == nil {
		return
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			walk(e, fn)
		}
		return
	}
	fn(err)
}

func (c *Config) Target() models.Target {
	return models.Target{
		Project: c.DestProject,
		Dataset: c.Dataset,
		Table:   c.Table,
	}
}

type binding struct {
	name string
	set  func(c *Config, val string) error
}

func stringVar(name string, field func(c *Config) *string) binding {
	return binding{name: name, set: func(c *Config, val string) error {
		*field(c) = val
		return nil
	}}
}

var bindings = []binding{
	stringVar(EnvSourceSecret, func(c *Config) *string { return &c.SourceSecret }),
	stringVar(EnvProjectKey, func(c *Config) *string { return &c.ProjectKey }),
	stringVar(EnvDataset, func(c *Config) *string { return &c.Dataset }),
	stringVar(EnvTable, func(c *Config) *string { return &c.Table }),
	stringVar(EnvDestProject, func(c *Config) *string { return &c.DestProject }),
	stringVar(EnvLocation, func(c *Config) *string { return &c.Location }),
	stringVar(EnvSQLFile, func(c *Config) *string { return &c.SQLFile }),
	stringVar(EnvLogLevel, func(c *Config) *string { return &c.LogLevel }),
	stringVar(EnvLogFile, func(c *Config) *string { return &c.LogFile }),
	stringVar(EnvMongoURI, func(c *Config) *string { return &c.MongoURI }),
	stringVar(EnvMongoDatabase, func(c *Config) *string { return &c.MongoDatabase }),
	{name: EnvMaxNesting, set: func(c *Config, val string) error {
		n, err := strconv.Atoi(val)
		if err != nil {
			return err
		}
		c.MaxNesting = n
		return nil
	}},
	{name: EnvConnectTimeout, set: func(c *Config, val string) error {
		d, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		c.ConnectTimeout = d
		return nil
	}},
}
