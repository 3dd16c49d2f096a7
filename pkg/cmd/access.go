package cmd

import (
	"github.com/dukex/docstates/pkg/access"
	"github.com/dukex/docstates/pkg/protocol"
)

// NewAccessChecker loads the ACL file, or grants everything when no file is given.
func NewAccessChecker(aclFile string) (protocol.AccessChecker, error) {
	if aclFile == "" {
		return access.AllowAll{}, nil
	}

	return access.LoadACL(aclFile)
}
