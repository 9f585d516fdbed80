package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BartekS5/fieldmap/pkg/logger"
	"github.com/BartekS5/fieldmap/pkg/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS datastore_jobs (
	name TEXT PRIMARY KEY,
	job_id TEXT NOT NULL,
	processing_method TEXT NOT NULL,
	data_format TEXT NOT NULL,
	api JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS datastore_rules (
	datastore_name TEXT NOT NULL REFERENCES datastore_jobs(name) ON DELETE CASCADE,
	position INT NOT NULL,
	rule_key TEXT NOT NULL,
	is_pk BOOLEAN NOT NULL,
	source_field TEXT NOT NULL,
	data_type TEXT NOT NULL,
	rule_type TEXT NOT NULL,
	transform_type TEXT NOT NULL,
	expression TEXT NOT NULL,
	PRIMARY KEY (datastore_name, position)
);`

var ruleColumns = []string{
	"datastore_name", "position", "rule_key", "is_pk", "source_field",
	"data_type", "rule_type", "transform_type", "expression",
}

type PostgresSink struct {
	pool *pgxpool.Pool
}

func NewPostgresSink(pool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{pool: pool}
}

func (p *PostgresSink) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	logger.Info("PostgreSQL: schema is up to date.")
	return nil
}

func (p *PostgresSink) Save(ctx context.Context, job models.DataStoreJob) error {
	if err := checkJob(job); err != nil {
		return err
	}
	api, err := json.Marshal(job.API)
	if err != nil {
		return fmt.Errorf("failed to encode api source: %w", err)
	}

	name := job.DataStore.Name
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO datastore_jobs (name, job_id, processing_method, data_format, api)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (name) DO UPDATE SET
				job_id = EXCLUDED.job_id,
				processing_method = EXCLUDED.processing_method,
				data_format = EXCLUDED.data_format,
				api = EXCLUDED.api,
				updated_at = now()`,
			name, job.ID, job.DataStore.ProcessingMethod, job.DataStore.DataFormat, api)
		if err != nil {
			return fmt.Errorf("failed to write job %s: %w", name, err)
		}

		if _, err := tx.Exec(ctx, "DELETE FROM datastore_rules WHERE datastore_name = $1", name); err != nil {
			return fmt.Errorf("failed to clear rules of %s: %w", name, err)
		}

		n, err := tx.CopyFrom(ctx, pgx.Identifier{"datastore_rules"}, ruleColumns, pgx.CopyFromRows(ruleRows(name, job.DataStore.Rules)))
		if err != nil {
			return fmt.Errorf("failed to copy rules of %s: %w", name, err)
		}
		logger.Infof("PostgreSQL: saved job %s with %d rules", name, n)
		return nil
	})
}

func ruleRows(name string, rules []models.Rule) [][]any {
	rows := make([][]any, 0, len(rules))
	for i, r := range rules {
		rows = append(rows, []any{
			name, int32(i), r.Key, r.IsPK, r.SourceField,
			string(r.DataType), string(r.RuleType), r.Transform.Type, r.Transform.Expression,
		})
	}
	return rows
}

func (p *PostgresSink) ExistingNames(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, "SELECT name FROM datastore_jobs ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list data store names: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan data store names: %w", err)
	}
	return names, nil
}

func (p *PostgresSink) Close(context.Context) error {
	p.pool.Close()
	return nil
}
