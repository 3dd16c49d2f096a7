package access_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dukex/docstates/pkg/access"
	"github.com/dukex/docstates/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const aclYAML = `
grants:
  - user: alice
    permission: submit
  - user: bob
    permission: approve
    object: doc-1
  - user: "*"
    permission: comment
`

func TestACL_Can(t *testing.T) {
	acl, err := access.ParseACL([]byte(aclYAML))
	require.NoError(t, err)

	doc1 := &models.Document{ID: "doc-1"}
	doc2 := &models.Document{ID: "doc-2"}
	alice := &models.User{ID: "alice"}
	bob := &models.User{ID: "bob"}

	tests := []struct {
		name       string
		user       *models.User
		permission string
		object     *models.Document
		want       bool
	}{
		{name: "global grant", user: alice, permission: "submit", object: doc2, want: true},
		{name: "object grant", user: bob, permission: "approve", object: doc1, want: true},
		{name: "other object", user: bob, permission: "approve", object: doc2, want: false},
		{name: "missing permission", user: alice, permission: "approve", object: doc1, want: false},
		{name: "wildcard user", user: bob, permission: "comment", object: doc2, want: true},
		{name: "anonymous", user: nil, permission: "comment", object: doc2, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := acl.Can(context.Background(), tt.permission, tt.user, tt.object)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestACL_InstanceScopedToDocument(t *testing.T) {
	acl, err := access.NewACL([]access.Grant{{User: "bob", Permission: "approve", Object: "doc-1"}})
	require.NoError(t, err)

	instance := &models.WorkflowInstance{ID: "i1", DocumentID: "doc-1"}

	ok, err := acl.Can(context.Background(), "approve", &models.User{ID: "bob"}, instance)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLoadACL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "acl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(aclYAML), 0o600))

	_, err := access.LoadACL(path)
	require.NoError(t, err)

	_, err = access.LoadACL(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = access.ParseACL([]byte("grants:\n  - user: alice\n"))
	require.Error(t, err)
}

func TestAllowAll(t *testing.T) {
	ok, err := access.AllowAll{}.Can(context.Background(), "anything", nil, nil)
	require.NoError(t, err)
	assert.True(t, ok)
}
