// Package access provides AccessChecker implementations for hosts that do not bring their own.
package access

import (
	"context"
	"fmt"
	"os"

	"github.com/dukex/docstates/pkg/models"
	"github.com/dukex/docstates/pkg/protocol"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Wildcard matches any user or object in a grant.
const Wildcard = "*"

// Grant gives a user a permission on one object, or on all objects.
type Grant struct {
	User       string `yaml:"user"       validate:"required"`
	Permission string `yaml:"permission" validate:"required"`
	Object     string `yaml:"object"`
}

type file struct {
	Grants []Grant `yaml:"grants" validate:"dive"`
}

// ACL is a static list of grants.
type ACL struct {
	grants map[string]map[string]map[string]struct{}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func NewACL(grants []Grant) (*ACL, error) {
	acl := &ACL{grants: make(map[string]map[string]map[string]struct{})}

	for i, grant := range grants {
		if err := validate.Struct(grant); err != nil {
			return nil, fmt.Errorf("grant %d: %w", i, err)
		}

		object := grant.Object
		if object == "" {
			object = Wildcard
		}

		byPermission, ok := acl.grants[grant.User]
		if !ok {
			byPermission = make(map[string]map[string]struct{})
			acl.grants[grant.User] = byPermission
		}

		objects, ok := byPermission[grant.Permission]
		if !ok {
			objects = make(map[string]struct{})
			byPermission[grant.Permission] = objects
		}

		objects[object] = struct{}{}
	}

	return acl, nil
}

// ParseACL reads grants from a YAML document with a top-level "grants" list.
func ParseACL(data []byte) (*ACL, error) {
	var parsed file

	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse access list: %w", err)
	}

	return NewACL(parsed.Grants)
}

func LoadACL(path string) (*ACL, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read access list: %w", err)
	}

	return ParseACL(data)
}

func (a *ACL) Can(_ context.Context, permission string, user *models.User, object protocol.AccessObject) (bool, error) {
	if user == nil {
		return false, nil
	}

	for _, principal := range []string{user.ID, Wildcard} {
		objects, ok := a.grants[principal][permission]
		if !ok {
			continue
		}

		if _, ok := objects[Wildcard]; ok {
			return true, nil
		}

		if object != nil {
			if _, ok := objects[object.AccessObjectID()]; ok {
				return true, nil
			}
		}
	}

	return false, nil
}

// AllowAll grants every permission to every user.
type AllowAll struct{}

func (AllowAll) Can(context.Context, string, *models.User, protocol.AccessObject) (bool, error) {
	return true, nil
}
