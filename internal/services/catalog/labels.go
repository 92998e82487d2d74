package catalog

import (
	"fmt"
	"strings"
	"sync"

	"github.com/hashicorp/go-bexpr"

	"github.com/medsourcepro/msapi/internal/db/models"
)

// labelEvaluators caches compiled go-bexpr evaluators keyed by expression.
var labelEvaluators = &sync.Map{}

// compileLabelExpr returns a compiled evaluator for the expression, caching
// compilations. An empty expression yields a nil evaluator (no constraint).
func compileLabelExpr(expr string) (*bexpr.Evaluator, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, nil
	}

	if cached, ok := labelEvaluators.Load(expr); ok {
		return cached.(*bexpr.Evaluator), nil
	}

	evaluator, err := bexpr.CreateEvaluator(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLabelExpr, err)
	}
	labelEvaluators.Store(expr, evaluator)
	return evaluator, nil
}

// matchLabels evaluates a compiled expression against a product's labels.
// Evaluation failures (e.g. a referenced label key the product lacks) count
// as no match rather than an error.
func matchLabels(evaluator *bexpr.Evaluator, labels models.LabelMap) bool {
	if evaluator == nil {
		return true
	}

	values := make(map[string]any, len(labels))
	for k, v := range labels {
		values[k] = v
	}

	matches, err := evaluator.Evaluate(values)
	if err != nil {
		return false
	}
	return matches
}
