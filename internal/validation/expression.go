// Package validation holds the field, connection and expression validators
// and the step validity rules built on them. Validation outcomes are state
// (models.FieldError, models.RuleValidationState), never returned errors.
package validation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/BartekS5/fieldmap/pkg/logger"
	"github.com/BartekS5/fieldmap/pkg/models"
)

// ErrUndefined is returned by an Evaluator when an expression is well formed
// but resolves to nothing in the data.
var ErrUndefined = errors.New("expression result is undefined")

// Evaluator runs a path expression against sample data.
type Evaluator interface {
	Evaluate(ctx context.Context, expression string, data any) (any, error)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx context.Context, expression string, data any) (any, error)

func (f EvaluatorFunc) Evaluate(ctx context.Context, expression string, data any) (any, error) {
	return f(ctx, expression, data)
}

// ValidateExpression checks that expression produces a value for data. A
// blank expression is RuleStateNone. Evaluation errors, undefined results and
// evaluator panics all become RuleStateError.
func ValidateExpression(ctx context.Context, eval Evaluator, expression string, data any) models.RuleValidationState {
	expr := strings.TrimSpace(expression)
	if expr == "" {
		return models.RuleStateNone
	}

	if _, err := SafeEvaluate(ctx, eval, expr, data); err != nil {
		logger.Debugf("expression %q rejected: %v", expr, err)
		return models.RuleStateError
	}
	return models.RuleStateSuccess
}

// SafeEvaluate runs eval and turns a panic or a missing evaluator into an
// error.
func SafeEvaluate(ctx context.Context, eval Evaluator, expr string, data any) (result any, err error) {
	if eval == nil {
		return nil, errors.New("no evaluator configured")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("evaluator panic: %v", r)
		}
	}()
	return eval.Evaluate(ctx, expr, data)
}

// ExpressionError maps an async validation state onto the cleaning rule
// error. RuleStateNone keeps the current (synchronous) error.
func ExpressionError(state models.RuleValidationState, current models.FieldError) models.FieldError {
	switch state {
	case models.RuleStateError:
		return models.ErrExpression
	case models.RuleStateSuccess:
		return models.ErrNone
	default:
		return current
	}
}
