package conditions

import (
	"context"
	"fmt"
	"strings"
	gotemplate "text/template"

	"github.com/dukex/docstates/pkg/template"
)

type templatePredicate struct {
	tmpl *gotemplate.Template
}

func newTemplatePredicate(expression string) (*templatePredicate, error) {
	tmpl, err := template.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid template condition: %w", err)
	}

	return &templatePredicate{tmpl: tmpl}, nil
}

func (p *templatePredicate) Evaluate(_ context.Context, values map[string]any) (bool, error) {
	var buf strings.Builder

	err := p.tmpl.Execute(&buf, values)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate template condition: %w", err)
	}

	return Truthy(buf.String())
}
