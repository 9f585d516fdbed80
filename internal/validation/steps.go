package validation

import "github.com/BartekS5/fieldmap/pkg/models"

// IsFieldMappingStepValid requires at least one mapping and every target
// field touched and error free.
func IsFieldMappingStepValid(mappings []models.FieldMapping) bool {
	if len(mappings) == 0 {
		return false
	}
	for _, m := range mappings {
		if m.TargetFieldError.IsSet() || !m.TargetFieldTouched {
			return false
		}
	}
	return true
}

// IsCleaningStepValid requires exactly one primary key and no rule that is
// failing or still being checked. Manual fields must also carry a touched,
// error free cleaning rule.
func IsCleaningStepValid(mappings []models.FieldMapping) bool {
	pks := 0
	for _, m := range mappings {
		if m.IsPK {
			pks++
		}
		if m.RuleValidationState == models.RuleStateError || m.RuleValidationState == models.RuleStateLoading {
			return false
		}
		if m.IsManual() && (!m.CleaningRuleTouched || m.CleaningRuleError.IsSet()) {
			return false
		}
	}
	return pks == 1
}

func IsConnectionStepValid(errs models.ConnectionErrors, tested bool) bool {
	for _, e := range errs.Fields() {
		if e.IsSet() {
			return false
		}
	}
	return tested
}

// CanTestConnection reports whether every field except the test flag itself
// is valid.
func CanTestConnection(errs models.ConnectionErrors) bool {
	for field, e := range errs.Fields() {
		if field != "testApiConnection" && e.IsSet() {
			return false
		}
	}
	return true
}
