package protocol

import (
	"context"

	"github.com/dukex/docstates/pkg/models"
)

// AccessObject is anything a permission can be granted on.
type AccessObject interface {
	AccessObjectID() string
}

// AccessChecker answers whether a user holds a permission on an object.
// How permissions are granted is up to the host.
type AccessChecker interface {
	Can(ctx context.Context, permission string, user *models.User, object AccessObject) (bool, error)
}

// ErrorLog stores domain-tagged error notes on documents.
type ErrorLog interface {
	Create(ctx context.Context, documentID, domain, text string) error
	// Clear removes every note of the domain from the document.
	Clear(ctx context.Context, documentID, domain string) error
}
