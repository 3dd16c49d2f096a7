package persistence_test

import (
	"errors"
	"testing"

	"github.com/dukex/docstates/pkg/persistence"
	"github.com/stretchr/testify/assert"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("error checking functions work correctly", func(t *testing.T) {
		templateErr := persistence.NewTemplateError("GetByID", "tpl-123", persistence.ErrTemplateNotFound)
		instanceErr := persistence.NewInstanceError("CommitTransition", "inst-1", persistence.ErrConcurrentModification)
		documentErr := persistence.NewDocumentInstanceError("Create", "doc-1", persistence.ErrInstanceAlreadyExists)

		assert.True(t, persistence.IsTemplateNotFound(templateErr))
		assert.True(t, persistence.IsConcurrentModification(instanceErr))
		assert.False(t, persistence.IsInstanceNotFound(instanceErr))
		assert.True(t, errors.Is(documentErr, persistence.ErrInstanceAlreadyExists))
	})

	t.Run("errors contain context", func(t *testing.T) {
		err := persistence.NewTemplateError("Delete", "tpl-123", persistence.ErrTemplateInUse)

		assert.Contains(t, err.Error(), "Delete")
		assert.Contains(t, err.Error(), "tpl-123")
		assert.Contains(t, err.Error(), "has instances")

		docErr := persistence.NewDocumentInstanceError("Create", "doc-9", persistence.ErrInstanceAlreadyExists)
		assert.Contains(t, docErr.Error(), "document doc-9")
	})
}
