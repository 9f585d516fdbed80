package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/BartekS5/fieldmap/pkg/models"
	"github.com/tidwall/gjson"
	"github.com/zeebo/xxh3"
)

var ErrInvalidSample = errors.New("sample is not valid JSON")

// Sample is one example API response. Raw keeps the original key order for
// the tree; Value is the decoded document handed to the expression
// evaluator. Numbers in Value are float64 unless they are integers a float64
// cannot hold exactly; those stay json.Number.
type Sample struct {
	Raw         []byte
	Value       any
	Fingerprint uint64
}

// ParseSample validates raw JSON and optionally narrows it to the
// sub-document at root (a gjson path such as "data.items").
func ParseSample(raw []byte, root string) (*Sample, error) {
	if !gjson.ValidBytes(raw) {
		return nil, ErrInvalidSample
	}
	if root != "" {
		r := gjson.GetBytes(raw, root)
		if !r.Exists() {
			return nil, fmt.Errorf("root %q not found in sample", root)
		}
		raw = []byte(r.Raw)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("failed to decode sample: %w", err)
	}

	return &Sample{
		Raw:         raw,
		Value:       normalizeNumbers(v),
		Fingerprint: xxh3.Hash(raw),
	}, nil
}

// Tree builds the schema tree of the sample. A nil sample has an empty tree.
func (s *Sample) Tree() []models.TreeNode {
	if s == nil {
		return nil
	}
	return BuildBytes(s.Raw)
}

// SameAs reports whether both samples carry identical bytes.
func (s *Sample) SameAs(other *Sample) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.Fingerprint == other.Fingerprint && len(s.Raw) == len(other.Raw)
}

const maxExactInt = 1 << 53

func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = normalizeNumbers(e)
		}
	case []any:
		for i, e := range t {
			t[i] = normalizeNumbers(e)
		}
	case json.Number:
		if n, err := t.Int64(); err == nil {
			if n > maxExactInt || n < -maxExactInt {
				return t
			}
			return float64(n)
		}
		if !strings.ContainsAny(string(t), ".eE") {
			// Integer beyond int64.
			return t
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t
	}
	return v
}
