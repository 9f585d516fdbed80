package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/BartekS5/fieldmap/pkg/logger"
	"github.com/BartekS5/fieldmap/pkg/models"
)

var sqlServerSchema = []string{
	`IF OBJECT_ID('datastore_jobs', 'U') IS NULL
CREATE TABLE datastore_jobs (
	name NVARCHAR(128) NOT NULL PRIMARY KEY,
	job_id NVARCHAR(64) NOT NULL,
	processing_method NVARCHAR(32) NOT NULL,
	data_format NVARCHAR(32) NOT NULL,
	api NVARCHAR(MAX) NOT NULL,
	updated_at DATETIME2 NOT NULL DEFAULT SYSUTCDATETIME()
)`,
	`IF OBJECT_ID('datastore_rules', 'U') IS NULL
CREATE TABLE datastore_rules (
	datastore_name NVARCHAR(128) NOT NULL REFERENCES datastore_jobs(name) ON DELETE CASCADE,
	position INT NOT NULL,
	rule_key NVARCHAR(256) NOT NULL,
	is_pk BIT NOT NULL,
	source_field NVARCHAR(1024) NOT NULL,
	data_type NVARCHAR(16) NOT NULL,
	rule_type NVARCHAR(16) NOT NULL,
	transform_type NVARCHAR(32) NOT NULL,
	expression NVARCHAR(MAX) NOT NULL,
	PRIMARY KEY (datastore_name, position)
)`,
}

// SQLServerSink stores jobs in two tables: one row per data store and one
// row per rule.
type SQLServerSink struct {
	db *sql.DB
}

func NewSQLServerSink(db *sql.DB) *SQLServerSink {
	return &SQLServerSink{db: db}
}

func (s *SQLServerSink) Migrate(ctx context.Context) error {
	for _, stmt := range sqlServerSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	logger.Info("SQL Server: schema is up to date.")
	return nil
}

func (s *SQLServerSink) Save(ctx context.Context, job models.DataStoreJob) (err error) {
	if err := checkJob(job); err != nil {
		return err
	}
	api, err := json.Marshal(job.API)
	if err != nil {
		return fmt.Errorf("failed to encode api source: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	name := job.DataStore.Name
	var exists int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM datastore_jobs WHERE name = @p1", name).Scan(&exists)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx,
			"INSERT INTO datastore_jobs (name, job_id, processing_method, data_format, api) VALUES (@p1, @p2, @p3, @p4, @p5)",
			name, job.ID, job.DataStore.ProcessingMethod, job.DataStore.DataFormat, string(api))
	case err == nil:
		_, err = tx.ExecContext(ctx,
			"UPDATE datastore_jobs SET job_id = @p1, processing_method = @p2, data_format = @p3, api = @p4, updated_at = SYSUTCDATETIME() WHERE name = @p5",
			job.ID, job.DataStore.ProcessingMethod, job.DataStore.DataFormat, string(api), name)
	default:
		return fmt.Errorf("error checking row existence: %w", err)
	}
	if err != nil {
		return fmt.Errorf("failed to write job %s: %w", name, err)
	}

	if _, err = tx.ExecContext(ctx, "DELETE FROM datastore_rules WHERE datastore_name = @p1", name); err != nil {
		return fmt.Errorf("failed to clear rules of %s: %w", name, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO datastore_rules (datastore_name, position, rule_key, is_pk, source_field, data_type, rule_type, transform_type, expression) VALUES (@p1, @p2, @p3, @p4, @p5, @p6, @p7, @p8, @p9)")
	if err != nil {
		return fmt.Errorf("failed to prepare rule insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range job.DataStore.Rules {
		if _, err = stmt.ExecContext(ctx, name, i, r.Key, r.IsPK, r.SourceField, string(r.DataType), string(r.RuleType), r.Transform.Type, r.Transform.Expression); err != nil {
			return fmt.Errorf("failed to insert rule %q: %w", r.Key, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit job %s: %w", name, err)
	}
	logger.Infof("SQL Server: saved job %s with %d rules", name, len(job.DataStore.Rules))
	return nil
}

func (s *SQLServerSink) ExistingNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM datastore_jobs ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list data store names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQLServerSink) Close(context.Context) error {
	return s.db.Close()
}
