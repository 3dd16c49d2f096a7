// Package conditions compiles and evaluates transition, action and escalation conditions.
package conditions

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dukex/docstates/pkg/models"
)

var ErrUnsupportedLanguage = errors.New("unsupported condition language")

// Predicate is a compiled condition.
type Predicate interface {
	Evaluate(ctx context.Context, values map[string]any) (bool, error)
}

type always struct{}

func (always) Evaluate(context.Context, map[string]any) (bool, error) {
	return true, nil
}

// Always is the predicate of an empty condition.
var Always Predicate = always{}

// Compile builds the predicate of a condition. A nil or empty condition always holds.
func Compile(condition *models.Condition) (Predicate, error) {
	if condition.IsEmpty() {
		return Always, nil
	}

	switch condition.Language {
	case "", models.ConditionLanguageTemplate:
		return newTemplatePredicate(condition.Expression)
	case models.ConditionLanguageJavaScript:
		return newJavaScriptPredicate(condition.Expression)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, condition.Language)
	}
}

// Evaluate compiles and evaluates a condition in one step.
func Evaluate(ctx context.Context, condition *models.Condition, values map[string]any) (bool, error) {
	predicate, err := Compile(condition)
	if err != nil {
		return false, err
	}

	return predicate.Evaluate(ctx, values)
}

// Truthy converts the result of an expression to a boolean.
func Truthy(value any) (bool, error) {
	if value == nil {
		return false, nil
	}

	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		v = strings.TrimSpace(v)

		switch strings.ToLower(v) {
		case "", "<no value>", "none", "null", "nil":
			return false, nil
		}

		if result, err := strconv.ParseBool(v); err == nil {
			return result, nil
		}

		if number, err := strconv.ParseFloat(v, 64); err == nil {
			return number != 0, nil
		}

		return true, nil
	case int:
		return v != 0, nil
	case int64:
		return v != 0, nil
	case float64:
		return v != 0, nil
	case map[string]any:
		return len(v) > 0, nil
	case []any:
		return len(v) > 0, nil
	default:
		return false, fmt.Errorf("cannot convert %T to boolean", value)
	}
}
