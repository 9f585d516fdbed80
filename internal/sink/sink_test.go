package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/BartekS5/fieldmap/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMappings() []models.FieldMapping {
	return []models.FieldMapping{
		{
			ID:          "0-1",
			TargetField: "station_code",
			DataType:    models.DataTypeString,
			IsPK:        true,
			SourcePath:  []string{"station", "code"},
		},
		{
			ID:           "1",
			TargetField:  " total ",
			DataType:     models.DataTypeNumber,
			RuleType:     models.RuleSum,
			CleaningRule: "$sum(readings)",
			SourcePath:   []string{"readings"},
		},
		{
			TargetField:  "source",
			DataType:     models.DataTypeString,
			CleaningRule: `"north-pier"`,
		},
	}
}

func TestBuildRules(t *testing.T) {
	got := BuildRules(sampleMappings())
	require.Len(t, got, 3)

	assert.Equal(t, models.Rule{
		Key:         "station_code",
		IsPK:        true,
		SourceField: "station.code",
		DataType:    models.DataTypeString,
		Transform:   models.Transform{Type: "expression", Expression: "$.station.code"},
	}, got[0])

	assert.Equal(t, "total", got[1].Key)
	assert.Equal(t, "readings", got[1].SourceField)
	assert.Equal(t, models.RuleSum, got[1].RuleType)
	assert.Equal(t, "$sum(readings)", got[1].Transform.Expression)

	assert.Empty(t, got[2].SourceField)
	assert.Equal(t, `"north-pier"`, got[2].Transform.Expression)

	assert.Equal(t, "station_code", PrimaryKey(got))
	assert.Empty(t, BuildRules(nil))
}

func TestBuildRules_WireShape(t *testing.T) {
	raw, err := json.Marshal(BuildRules(sampleMappings()[:1]))
	require.NoError(t, err)

	assert.JSONEq(t, `[{
		"key": "station_code",
		"isPK": true,
		"sourceField": "station.code",
		"dataType": "string",
		"ruleType": "",
		"transform": {"type": "expression", "expression": "$.station.code"}
	}]`, string(raw))
}

func TestBuildJob(t *testing.T) {
	form := models.DefaultConnectionForm()
	form.DataStoreName = "weather"
	form.DataEndpoint = "https://api.example.com"
	form.RequestParameters = "limit=5"

	tests := []struct {
		name  string
		setup func(f *models.ConnectionForm)
		check func(t *testing.T, api models.APISource)
	}{
		{
			name: "basic",
			setup: func(f *models.ConnectionForm) {
				f.AuthMethod = models.AuthBasic
				f.Username = "u"
				f.Password = "p"
				f.APIKey = "ignored"
			},
			check: func(t *testing.T, api models.APISource) {
				assert.Equal(t, "u", api.BasicUsername)
				assert.Equal(t, "p", api.BasicPassword)
				assert.Empty(t, api.APIToken)
			},
		},
		{
			name: "bearer",
			setup: func(f *models.ConnectionForm) {
				f.AuthMethod = models.AuthBearer
				f.APIKey = "tok"
				f.Username = "ignored"
			},
			check: func(t *testing.T, api models.APISource) {
				assert.Equal(t, "tok", api.APIToken)
				assert.Empty(t, api.BasicUsername)
			},
		},
		{
			name:  "none",
			setup: func(*models.ConnectionForm) {},
			check: func(t *testing.T, api models.APISource) {
				assert.Empty(t, api.APIToken)
				assert.Empty(t, api.BasicUsername)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := form
			tt.setup(&f)

			job := BuildJob("job-1", f, sampleMappings())
			assert.Equal(t, "job-1", job.ID)
			assert.Equal(t, "https://api.example.com", job.API.RequestURL)
			assert.Equal(t, "GET", job.API.RequestMethod)
			assert.Equal(t, "limit=5", job.API.APITokenBody)
			assert.Equal(t, "5m", job.API.Interval)
			assert.Equal(t, "weather", job.DataStore.Name)
			assert.Equal(t, "replace", job.DataStore.ProcessingMethod)
			assert.Equal(t, "json", job.DataStore.DataFormat)
			assert.Len(t, job.DataStore.Rules, 3)
			tt.check(t, job.API)
		})
	}
}

func TestWriterSink(t *testing.T) {
	var buf bytes.Buffer
	s, err := Open(context.Background(), Options{Kind: KindStdout, Out: &buf})
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))

	form := models.DefaultConnectionForm()
	form.DataStoreName = "weather"
	job := BuildJob("job-1", form, sampleMappings())
	require.NoError(t, s.Save(context.Background(), job))

	var decoded models.DataStoreJob
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, job, decoded)

	names, err := s.ExistingNames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"weather"}, names)
	assert.NoError(t, s.Close(context.Background()))
}

func TestWriterSink_RejectsIncompleteJob(t *testing.T) {
	s := NewWriterSink(nil)

	noPK := BuildJob("x", models.ConnectionForm{DataStoreName: "a"}, sampleMappings()[1:])
	assert.ErrorIs(t, s.Save(context.Background(), noPK), ErrNoPrimaryKey)

	noName := BuildJob("x", models.ConnectionForm{}, sampleMappings())
	assert.Error(t, s.Save(context.Background(), noName))
}

func TestOpen_UnknownKind(t *testing.T) {
	_, err := Open(context.Background(), Options{Kind: "kafka"})
	assert.ErrorIs(t, err, ErrUnknownSink)
}
