package sink

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/BartekS5/fieldmap/pkg/logger"
	"github.com/BartekS5/fieldmap/pkg/models"
)

const (
	jobsCollection = "datastore_jobs"
	nameField      = "dataStore.name"
	writeTimeout   = 30 * time.Second
)

// MongoSink keeps one document per data store, keyed by its name.
type MongoSink struct {
	client *mongo.Client
	coll   *mongo.Collection
}

func NewMongoSink(client *mongo.Client, database string) *MongoSink {
	if database == "" {
		database = "fieldmap"
	}
	return &MongoSink{
		client: client,
		coll:   client.Database(database).Collection(jobsCollection),
	}
}

func (m *MongoSink) Migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	_, err := m.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: nameField, Value: 1}},
		Options: options.Index().SetUnique(true).SetName("uniq_datastore_name"),
	})
	if err != nil {
		return fmt.Errorf("failed to create index on %s: %w", nameField, err)
	}
	logger.Infof("Mongo: ensured unique index on %s.%s", jobsCollection, nameField)
	return nil
}

func (m *MongoSink) Save(ctx context.Context, job models.DataStoreJob) error {
	if err := checkJob(job); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	filter := bson.M{nameField: job.DataStore.Name}
	update := bson.M{
		"$set":         job,
		"$setOnInsert": bson.M{"createdAt": time.Now().UTC()},
	}
	writes := []mongo.WriteModel{
		mongo.NewUpdateOneModel().SetFilter(filter).SetUpdate(update).SetUpsert(true),
	}

	res, err := m.coll.BulkWrite(ctx, writes)
	if err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.DataStore.Name, err)
	}
	logger.Infof("Mongo BulkWrite: Match %d, Mod %d, Upsert %d", res.MatchedCount, res.ModifiedCount, res.UpsertedCount)
	return nil
}

func (m *MongoSink) ExistingNames(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	values, err := m.coll.Distinct(ctx, nameField, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list data store names: %w", err)
	}

	names := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			names = append(names, s)
		}
	}
	return names, nil
}

func (m *MongoSink) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
