package sink

import (
	"strings"

	"github.com/BartekS5/fieldmap/internal/rules"
	"github.com/BartekS5/fieldmap/pkg/models"
)

// BuildRules serializes mappings in table order. A blank cleaning rule on a
// tree-derived field exports as the direct path reference.
func BuildRules(mappings []models.FieldMapping) []models.Rule {
	out := make([]models.Rule, 0, len(mappings))
	for _, m := range mappings {
		out = append(out, models.Rule{
			Key:         strings.TrimSpace(m.TargetField),
			IsPK:        m.IsPK,
			SourceField: strings.Join(m.SourcePath, "."),
			DataType:    m.DataType,
			RuleType:    m.RuleType,
			Transform: models.Transform{
				Type:       models.TransformExpression,
				Expression: rules.Expression(m),
			},
		})
	}
	return out
}

// BuildJob assembles the payload a sink persists.
func BuildJob(id string, form models.ConnectionForm, mappings []models.FieldMapping) models.DataStoreJob {
	job := models.DataStoreJob{
		ID: id,
		API: models.APISource{
			RequestURL:    form.DataEndpoint,
			RequestMethod: form.RequestMethod,
			AuthMethod:    form.AuthMethod,
			APITokenBody:  form.RequestParameters,
			Interval:      form.Interval,
		},
		DataStore: models.DataStore{
			Name:             form.DataStoreName,
			ProcessingMethod: form.ProcessingMethod,
			DataFormat:       form.DataFormat,
			Rules:            BuildRules(mappings),
		},
	}

	switch {
	case form.AuthMethod == models.AuthBasic:
		job.API.BasicUsername = form.Username
		job.API.BasicPassword = form.Password
	case form.AuthMethod.UsesToken():
		job.API.APIToken = form.APIKey
	}
	return job
}

// PrimaryKey returns the key of the primary key rule, or "".
func PrimaryKey(rules []models.Rule) string {
	for _, r := range rules {
		if r.IsPK {
			return r.Key
		}
	}
	return ""
}
