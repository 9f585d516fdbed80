// Package evaluator provides the JSONata implementation of
// validation.Evaluator.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"time"

	jsonata "github.com/blues/jsonata-go"
	"github.com/patrickmn/go-cache"

	"github.com/BartekS5/fieldmap/internal/validation"
)

const (
	compiledTTL     = 30 * time.Minute
	cleanupInterval = 10 * time.Minute
)

// JSONata evaluates JSONata expressions. Compiled expressions are cached by
// source text, since the same rule is re-validated on every keystroke pause.
type JSONata struct {
	compiled *cache.Cache
}

func NewJSONata() *JSONata {
	return &JSONata{
		compiled: cache.New(compiledTTL, cleanupInterval),
	}
}

func (j *JSONata) Evaluate(ctx context.Context, expression string, data any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	expr, err := j.compile(expression)
	if err != nil {
		return nil, err
	}

	result, err := expr.Eval(data)
	if err != nil {
		if errors.Is(err, jsonata.ErrUndefined) {
			return nil, validation.ErrUndefined
		}
		return nil, fmt.Errorf("failed to evaluate %q: %w", expression, err)
	}
	return result, nil
}

func (j *JSONata) compile(expression string) (*jsonata.Expr, error) {
	if cached, ok := j.compiled.Get(expression); ok {
		return cached.(*jsonata.Expr), nil
	}

	expr, err := jsonata.Compile(expression)
	if err != nil {
		return nil, fmt.Errorf("failed to compile %q: %w", expression, err)
	}
	j.compiled.Set(expression, expr, cache.DefaultExpiration)
	return expr, nil
}

// Cached reports how many compiled expressions are held.
func (j *JSONata) Cached() int {
	return j.compiled.ItemCount()
}
