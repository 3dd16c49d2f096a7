package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dukex/docstates/pkg/models"
	cli "github.com/urfave/cli/v3"
)

var ErrMissingArgument = errors.New("missing argument")

func requireArgs(command *cli.Command, names ...string) ([]string, error) {
	args := command.Args()
	if args.Len() < len(names) {
		return nil, fmt.Errorf("%w: usage %s %s", ErrMissingArgument, command.FullName(), strings.Join(names, " "))
	}

	return args.Slice()[:len(names)], nil
}

// userFromFlag returns nil when no user was given.
func userFromFlag(command *cli.Command) *models.User {
	id := command.String("user")
	if id == "" {
		return nil
	}

	return &models.User{ID: id, Username: id}
}

// parseExtraData turns key=value pairs into typed values using the transition's field declarations.
// Undeclared keys are kept as strings and left to schema validation.
func parseExtraData(fields []*models.TransitionField, pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil //nolint:nilnil // no extra data
	}

	types := make(map[string]models.FieldType, len(fields))
	for _, field := range fields {
		types[field.Name] = field.Type
	}

	data := make(map[string]any, len(pairs))

	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid extra data %q, expected key=value", pair)
		}

		value, err := convertField(types[key], raw)
		if err != nil {
			return nil, fmt.Errorf("extra data %s: %w", key, err)
		}

		data[key] = value
	}

	return data, nil
}

func convertField(fieldType models.FieldType, raw string) (any, error) {
	switch fieldType {
	case models.FieldInteger:
		return strconv.ParseInt(raw, 10, 64)
	case models.FieldNumber:
		return strconv.ParseFloat(raw, 64)
	case models.FieldBoolean:
		return strconv.ParseBool(raw)
	case models.FieldString, models.FieldDate:
		return raw, nil
	default:
		return raw, nil
	}
}
