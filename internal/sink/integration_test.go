package sink

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BartekS5/fieldmap/pkg/models"
)

// These tests run against real databases and are skipped unless the matching
// connection string is set.
func TestSinkRoundTrip(t *testing.T) {
	targets := []struct {
		kind string
		env  string
	}{
		{KindMongo, "MONGO_CONNECTION_STRING"},
		{KindSQLServer, "SQL_CONNECTION_STRING"},
		{KindPostgres, "POSTGRES_CONNECTION_STRING"},
	}

	for _, target := range targets {
		t.Run(target.kind, func(t *testing.T) {
			conn := os.Getenv(target.env)
			if conn == "" {
				t.Skipf("%s not set", target.env)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			s, err := Open(ctx, Options{Kind: target.kind, ConnString: conn, Database: "fieldmap_test"})
			require.NoError(t, err)
			defer s.Close(ctx)
			require.NoError(t, s.Migrate(ctx))

			form := models.DefaultConnectionForm()
			form.DataStoreName = "it_" + uuid.NewString()[:8]
			form.DataEndpoint = "https://api.example.com"
			job := BuildJob(uuid.NewString(), form, sampleMappings())

			require.NoError(t, s.Save(ctx, job))
			// Saving again replaces the job instead of failing.
			job.ID = uuid.NewString()
			require.NoError(t, s.Save(ctx, job))

			names, err := s.ExistingNames(ctx)
			require.NoError(t, err)
			assert.Contains(t, names, form.DataStoreName)
		})
	}
}
