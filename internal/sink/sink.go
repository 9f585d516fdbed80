// Package sink exports a finished mapping as a data store job and persists it
// downstream. The executor that runs the job reads it from there.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/BartekS5/fieldmap/pkg/database"
	"github.com/BartekS5/fieldmap/pkg/logger"
	"github.com/BartekS5/fieldmap/pkg/models"
)

const (
	KindStdout    = "stdout"
	KindMongo     = "mongo"
	KindSQLServer = "sqlserver"
	KindPostgres  = "postgres"
)

var (
	ErrUnknownSink  = errors.New("unknown sink")
	ErrNoPrimaryKey = errors.New("job has no primary key rule")
)

type Sink interface {
	// Migrate creates whatever storage the sink needs.
	Migrate(ctx context.Context) error
	// Save inserts the job or replaces the one with the same data store name.
	Save(ctx context.Context, job models.DataStoreJob) error
	// ExistingNames lists the data store names already taken.
	ExistingNames(ctx context.Context) ([]string, error)
	Close(ctx context.Context) error
}

// Options selects and configures a sink.
type Options struct {
	Kind       string
	ConnString string
	// Database is the MongoDB database name.
	Database string
	// Out receives jobs for the stdout sink.
	Out io.Writer
}

func Open(ctx context.Context, opts Options) (Sink, error) {
	switch opts.Kind {
	case "", KindStdout:
		return NewWriterSink(opts.Out), nil
	case KindMongo:
		client, err := database.ConnectMongo(ctx, opts.ConnString)
		if err != nil {
			return nil, err
		}
		return NewMongoSink(client, opts.Database), nil
	case KindSQLServer:
		db, err := database.ConnectSQL(ctx, opts.ConnString)
		if err != nil {
			return nil, err
		}
		return NewSQLServerSink(db), nil
	case KindPostgres:
		pool, err := database.ConnectPostgres(ctx, opts.ConnString)
		if err != nil {
			return nil, err
		}
		return NewPostgresSink(pool), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSink, opts.Kind)
	}
}

func checkJob(job models.DataStoreJob) error {
	if job.DataStore.Name == "" {
		return errors.New("job has no data store name")
	}
	if PrimaryKey(job.DataStore.Rules) == "" {
		return ErrNoPrimaryKey
	}
	return nil
}

// WriterSink prints jobs as indented JSON. It has no memory of earlier runs,
// so only names saved through this instance count as taken.
type WriterSink struct {
	mu    sync.Mutex
	out   io.Writer
	names []string
}

func NewWriterSink(out io.Writer) *WriterSink {
	if out == nil {
		out = io.Discard
	}
	return &WriterSink{out: out}
}

func (w *WriterSink) Migrate(context.Context) error { return nil }

func (w *WriterSink) Save(_ context.Context, job models.DataStoreJob) error {
	if err := checkJob(job); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(job); err != nil {
		return fmt.Errorf("failed to write job: %w", err)
	}
	w.names = append(w.names, job.DataStore.Name)
	logger.Debugf("Wrote job %s (%d rules)", job.ID, len(job.DataStore.Rules))
	return nil
}

func (w *WriterSink) ExistingNames(context.Context) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.names...), nil
}

func (w *WriterSink) Close(context.Context) error { return nil }
