// Package preview evaluates exported rules against the sample to show the
// row a downstream executor would produce.
package preview

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/BartekS5/fieldmap/internal/validation"
	"github.com/BartekS5/fieldmap/pkg/logger"
	"github.com/BartekS5/fieldmap/pkg/models"
	"github.com/BartekS5/fieldmap/pkg/utils"
)

// Result is one output row. Keys whose rule failed map to nil in Row and
// carry the cause in Errors.
type Result struct {
	Row    map[string]any
	Errors map[string]error
	// Order lists the keys in rule order.
	Order []string
}

type Previewer struct {
	eval  validation.Evaluator
	limit int
}

func New(eval validation.Evaluator) *Previewer {
	return &Previewer{
		eval:  eval,
		limit: runtime.GOMAXPROCS(0),
	}
}

// WithLimit caps the number of concurrent evaluations.
func (p *Previewer) WithLimit(n int) *Previewer {
	if n > 0 {
		p.limit = n
	}
	return p
}

// Run evaluates every rule against data. Failing rules do not stop the
// others; only a cancelled ctx aborts the run.
func (p *Previewer) Run(ctx context.Context, rules []models.Rule, data any) (*Result, error) {
	start := time.Now()
	values := make([]any, len(rules))
	errs := make([]error, len(rules))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.limit)
	for i, rule := range rules {
		i, rule := i, rule
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			values[i], errs[i] = p.evaluate(gctx, rule, data)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("preview cancelled: %w", err)
	}

	res := &Result{
		Row:    make(map[string]any, len(rules)),
		Errors: make(map[string]error),
		Order:  make([]string, 0, len(rules)),
	}
	for i, rule := range rules {
		res.Order = append(res.Order, rule.Key)
		res.Row[rule.Key] = values[i]
		if errs[i] != nil {
			res.Errors[rule.Key] = errs[i]
		}
	}

	logger.Debugf("Preview evaluated %d rules in %s (%d failed)", len(rules), time.Since(start), len(res.Errors))
	return res, nil
}

func (p *Previewer) evaluate(ctx context.Context, rule models.Rule, data any) (any, error) {
	v, err := validation.SafeEvaluate(ctx, p.eval, rule.Transform.Expression, data)
	if err != nil {
		return nil, err
	}
	return coerce(v, rule.DataType)
}

func coerce(v any, dataType models.DataType) (any, error) {
	switch dataType {
	case models.DataTypeNumber:
		f, err := utils.ConvertToFloat(v)
		if err != nil {
			return nil, fmt.Errorf("value is not a number: %w", err)
		}
		return f, nil
	case models.DataTypeNull:
		return nil, nil
	case models.DataTypeString:
		if v == nil {
			return nil, nil
		}
		return utils.FormatSample(v), nil
	default:
		return v, nil
	}
}
