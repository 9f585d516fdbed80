package validation

import (
	"strings"

	"github.com/BartekS5/fieldmap/pkg/models"
)

// ValidateTargetFields returns one error per mapping: ErrRequired for a blank
// target field, ErrDuplicate when another mapping uses the same name (every
// holder of the name is flagged), ErrNone otherwise.
func ValidateTargetFields(mappings []models.FieldMapping) []models.FieldError {
	counts := make(map[string]int, len(mappings))
	for _, m := range mappings {
		if name := strings.TrimSpace(m.TargetField); name != "" {
			counts[name]++
		}
	}

	errs := make([]models.FieldError, len(mappings))
	for i, m := range mappings {
		name := strings.TrimSpace(m.TargetField)
		switch {
		case name == "":
			errs[i] = models.ErrRequired
		case counts[name] > 1:
			errs[i] = models.ErrDuplicate
		}
	}
	return errs
}

// CleaningRuleError is the synchronous check on a cleaning rule: manual
// fields have no source path to fall back on, so they need an expression.
func CleaningRuleError(m models.FieldMapping, rule string) models.FieldError {
	if m.IsManual() && strings.TrimSpace(rule) == "" {
		return models.ErrRequired
	}
	return models.ErrNone
}
