package conditions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dop251/goja"
)

type javaScriptPredicate struct {
	program *goja.Program
}

func newJavaScriptPredicate(expression string) (*javaScriptPredicate, error) {
	program, err := goja.Compile("condition", expression, true)
	if err != nil {
		return nil, fmt.Errorf("invalid javascript condition: %w", err)
	}

	return &javaScriptPredicate{program: program}, nil
}

// Evaluate runs the program on a fresh runtime. The context values are exposed as $
// and as one global per top-level key.
func (p *javaScriptPredicate) Evaluate(ctx context.Context, values map[string]any) (bool, error) {
	data, err := plain(values)
	if err != nil {
		return false, err
	}

	vm := goja.New()
	err = vm.Set("$", data)
	if err != nil {
		return false, fmt.Errorf("failed to expose condition context: %w", err)
	}

	for key, value := range data {
		err = vm.Set(key, value)
		if err != nil {
			return false, fmt.Errorf("failed to expose condition value %q: %w", key, err)
		}
	}

	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	result, err := vm.RunProgram(p.program)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate javascript condition: %w", err)
	}

	return Truthy(result.Export())
}

// plain round-trips values through JSON so scripts only see objects, arrays and scalars.
func plain(values map[string]any) (map[string]any, error) {
	encoded, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("failed to encode condition context: %w", err)
	}

	var data map[string]any

	err = json.Unmarshal(encoded, &data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode condition context: %w", err)
	}

	return data, nil
}
