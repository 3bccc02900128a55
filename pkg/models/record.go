package models

import (
	"fmt"
	"time"
)

// Column describes one column of a result set as reported by the source driver.
type Column struct {
	Name       string
	SourceType string
	Nullable   bool
}

type Field struct {
	Name  string
	Value any
}

// Record is one source row. Fields keep the query's declared column order.
type Record struct {
	Fields []Field
}

func NewRecord(columns []Column, values []any) (Record, error) {
	if len(columns) != len(values) {
		return Record{}, fmt.Errorf("record has %d values for %d columns", len(values), len(columns))
	}

	fields := make([]Field, len(columns))
	for i, col := range columns {
		fields[i] = Field{Name: col.Name, Value: values[i]}
	}
	return Record{Fields: fields}, nil
}

func (r Record) Len() int {
	return len(r.Fields)
}

// Target identifies the BigQuery table a run replaces.
type Target struct {
	Project string `json:"project,omitempty" bson:"project,omitempty"`
	Dataset string `json:"dataset" bson:"dataset"`
	Table   string `json:"table" bson:"table"`
}

func (t Target) String() string {
	if t.Project == "" {
		return fmt.Sprintf("%s.%s", t.Dataset, t.Table)
	}
	return fmt.Sprintf("%s.%s.%s", t.Project, t.Dataset, t.Table)
}

type RunState string

const (
	StateInit    RunState = "INIT"
	StateRunning RunState = "RUNNING"
	StateDone    RunState = "DONE"
	StateFailed  RunState = "FAILED"
)

// RunReport is the terminal summary of one pipeline run.
type RunReport struct {
	LoadID     string    `bson:"_id"`
	ProjectKey string    `bson:"projectKey"`
	Target     Target    `bson:"target"`
	State      RunState  `bson:"state"`
	Rows       int64     `bson:"rows"`
	Columns    []string  `bson:"columns"`
	StartedAt  time.Time `bson:"startedAt"`
	FinishedAt time.Time `bson:"finishedAt"`
	Error      string    `bson:"error,omitempty"`
}

func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
