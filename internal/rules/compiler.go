// Package rules compiles cleaning rule selections into JSONata path
// expressions and decides which rules a mapped field may use.
package rules

import (
	"slices"
	"strings"

	"github.com/BartekS5/fieldmap/pkg/models"
	"github.com/BartekS5/fieldmap/pkg/utils"
)

var functions = map[models.RuleType]string{
	models.RuleSum:       "$sum",
	models.RuleAvg:       "$average",
	models.RuleMax:       "$max",
	models.RuleMin:       "$min",
	models.RuleLen:       "$length",
	models.RuleUpperCase: "$uppercase",
	models.RuleLowerCase: "$lowercase",
	models.RuleTrim:      "$trim",
}

// Compile returns the expression applying ruleType to the value at path.
// RuleEmpty and unknown rule types compile to "".
func Compile(ruleType models.RuleType, path []string) string {
	fn, ok := functions[ruleType]
	if !ok {
		return ""
	}
	return fn + "(" + strings.Join(path, ".") + ")"
}

// DefaultExpression is the direct reference used for a tree-derived field
// whose cleaning rule was left empty.
func DefaultExpression(path []string) string {
	return "$." + strings.Join(path, ".")
}

// Expression returns the expression a mapping exports: its cleaning rule, or
// the direct path reference when the rule is blank.
func Expression(m models.FieldMapping) string {
	if strings.TrimSpace(m.CleaningRule) != "" {
		return m.CleaningRule
	}
	if len(m.SourcePath) == 0 {
		return ""
	}
	return DefaultExpression(m.SourcePath)
}

var (
	numericRules = []models.RuleType{models.RuleEmpty, models.RuleSum, models.RuleAvg, models.RuleMax, models.RuleMin}
	stringRules  = []models.RuleType{models.RuleEmpty, models.RuleLen, models.RuleUpperCase, models.RuleLowerCase, models.RuleTrim}
	numArrRules  = []models.RuleType{models.RuleEmpty, models.RuleSum, models.RuleAvg, models.RuleMax, models.RuleMin, models.RuleLen}
	arrayRules   = []models.RuleType{models.RuleEmpty, models.RuleLen}
	emptyOnly    = []models.RuleType{models.RuleEmpty}
)

// Available lists the rule types offered for a mapping, based on the JSON
// kind of its sampled value. Manual fields only get RuleEmpty since they
// carry no source path to compile against.
func Available(m models.FieldMapping) []models.RuleType {
	if m.IsManual() {
		return slices.Clone(emptyOnly)
	}

	kind := m.SampleKind
	if kind == "" {
		kind = utils.KindOf(m.SampleValue)
	}

	switch kind {
	case models.KindNumber:
		return slices.Clone(numericRules)
	case models.KindString:
		return slices.Clone(stringRules)
	case models.KindArray:
		if m.SampleElemKind == models.KindNumber {
			return slices.Clone(numArrRules)
		}
		return slices.Clone(arrayRules)
	default:
		return slices.Clone(emptyOnly)
	}
}

func IsAvailable(m models.FieldMapping, ruleType models.RuleType) bool {
	return slices.Contains(Available(m), ruleType)
}
