package etl

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/BartekS5/jira2bq/pkg/models"
)

const runsCollection = "runs"

// MongoJournal stores one document per run, keyed by load id.
type MongoJournal struct {
	Client   *mongo.Client
	Database string
	Timeout  time.Duration
}

func NewMongoJournal(client *mongo.Client, database string) *MongoJournal {
	return &MongoJournal{
		Client:   client,
		Database: database,
		Timeout:  30 * time.Second,
	}
}

func (m *MongoJournal) collection() *mongo.Collection {
	return m.Client.Database(m.Database).Collection(runsCollection)
}

func (m *MongoJournal) Record(ctx context.Context, report *models.RunReport) error {
	ctx, cancel := context.WithTimeout(ctx, m.Timeout)
	defer cancel()

	filter := bson.M{"_id": report.LoadID}
	opts := options.Replace().SetUpsert(true)
	if _, err := m.collection().ReplaceOne(ctx, filter, report, opts); err != nil {
		return fmt.Errorf("failed to write run %s: %w", report.LoadID, err)
	}
	return nil
}

// LastRuns returns the most recent runs for target, newest first.
func (m *MongoJournal) LastRuns(ctx context.Context, target models.Target, limit int64) ([]models.RunReport, error) {
	ctx, cancel := context.WithTimeout(ctx, m.Timeout)
	defer cancel()

	findOpts := options.Find().
		SetSort(bson.D{{Key: "startedAt", Value: -1}}).
		SetLimit(limit)

	cursor, err := m.collection().Find(ctx, bson.M{
		"target.dataset": target.Dataset,
		"target.table":   target.Table,
	}, findOpts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var runs []models.RunReport
	if err := cursor.All(ctx, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}
