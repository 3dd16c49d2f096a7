// Package template renders text/template expressions against workflow instance contexts.
package template

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/dukex/docstates/pkg/models"
)

// RenderWithContext renders input against the values an action sees.
func RenderWithContext(input string, executionCtx *models.ExecutionContext) (any, error) {
	return Render(input, executionCtx.Values)
}

// Parse compiles templateStr without executing it.
func Parse(templateStr string) (*template.Template, error) {
	tmpl, err := template.New("docstates").Funcs(funcs()).Option("missingkey=zero").Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	return tmpl, nil
}

// RenderString renders templateStr and returns the raw text output.
func RenderString(templateStr string, data any) (string, error) {
	tmpl, err := Parse(templateStr)
	if err != nil {
		return "", err
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	return buf.String(), nil
}

// Render renders templateStr and coerces the output to JSON, a number or a boolean when it parses as one.
func Render(templateStr string, data any) (any, error) {
	result, err := RenderString(templateStr, data)
	if err != nil {
		return nil, err
	}

	result = strings.TrimSpace(result)
	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		err := json.Unmarshal([]byte(result), &jsonResult)
		if err != nil {
			return nil, fmt.Errorf("failed to parse json '%s': %w", templateStr, err)
		}

		return jsonResult, nil
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

func funcs() template.FuncMap {
	return template.FuncMap{
		"now": func() string {
			return time.Now().UTC().Format(time.RFC3339)
		},
		"rand": func(max int) int {
			if max <= 0 {
				return 0
			}

			num := make([]byte, 1)

			_, err := rand.Read(num)
			if err != nil {
				return 0
			}

			return int(num[0]) % max
		},
		"json": func(value any) (string, error) {
			encoded, err := json.Marshal(value)
			if err != nil {
				return "", err
			}

			return string(encoded), nil
		},
	}
}
