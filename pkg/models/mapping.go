package models

import "encoding/json"

type DataType string

const (
	DataTypeString DataType = "string"
	DataTypeNumber DataType = "number"
	DataTypeNull   DataType = "null"
)

type RuleType string

const (
	RuleEmpty     RuleType = ""
	RuleSum       RuleType = "Sum"
	RuleAvg       RuleType = "Avg"
	RuleMax       RuleType = "Max"
	RuleMin       RuleType = "Min"
	RuleLen       RuleType = "Len"
	RuleUpperCase RuleType = "UpperCase"
	RuleLowerCase RuleType = "LowerCase"
	RuleTrim      RuleType = "Trim"
)

// RuleValidationState tracks the asynchronous check of a cleaning rule.
type RuleValidationState string

const (
	RuleStateNone    RuleValidationState = ""
	RuleStateLoading RuleValidationState = "loading"
	RuleStateSuccess RuleValidationState = "success"
	RuleStateError   RuleValidationState = "error"
)

// FieldMapping is one row of the mapping table: a source path in the sample
// that becomes a named, typed and optionally transformed output field.
// ID is the schema tree node key, or "" for a manually added field.
type FieldMapping struct {
	ID                  string              `json:"id"`
	SourceField         string              `json:"sourceField"`
	SampleValue         any                 `json:"sampleValue"`
	SampleKind          ValueKind           `json:"sampleKind,omitempty"`
	SampleElemKind      ValueKind           `json:"sampleElemKind,omitempty"`
	TargetField         string              `json:"targetField"`
	DataType            DataType            `json:"dataType"`
	RuleType            RuleType            `json:"ruleType"`
	CleaningRule        string              `json:"cleaningRule"`
	IsPK                bool                `json:"isPK"`
	SourcePath          []string            `json:"sourcePath,omitempty"`
	TargetFieldTouched  bool                `json:"targetFieldTouched"`
	TargetFieldError    FieldError          `json:"targetFieldError"`
	CleaningRuleTouched bool                `json:"cleaningRuleTouched"`
	CleaningRuleError   FieldError          `json:"cleaningRuleError"`
	RuleValidationState RuleValidationState `json:"ruleValidationState"`
}

// IsManual reports whether the field was added by hand rather than picked
// from the schema tree.
func (m FieldMapping) IsManual() bool {
	return m.ID == ""
}

// MappingFile is the declarative form of a mapping table, as read from a
// JSON or YAML file by the CLI.
type MappingFile struct {
	Root   string      `json:"root,omitempty" yaml:"root,omitempty"`
	Fields []FieldSpec `json:"fields" yaml:"fields"`
}

// FieldSpec describes one output field. Source is a dotted path into the
// sample; leave it empty for a manual field driven by CleaningRule alone.
type FieldSpec struct {
	Source       string   `json:"source,omitempty" yaml:"source,omitempty"`
	Target       string   `json:"target" yaml:"target"`
	DataType     DataType `json:"dataType,omitempty" yaml:"dataType,omitempty"`
	RuleType     RuleType `json:"ruleType,omitempty" yaml:"ruleType,omitempty"`
	CleaningRule string   `json:"cleaningRule,omitempty" yaml:"cleaningRule,omitempty"`
	IsPK         bool     `json:"isPK,omitempty" yaml:"isPK,omitempty"`
}

func LoadMapping(data []byte) (*MappingFile, error) {
	var m MappingFile
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
