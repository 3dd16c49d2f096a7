// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"

	"github.com/dukex/docstates/pkg/actions/httprequest"
	logaction "github.com/dukex/docstates/pkg/actions/log"
	"github.com/dukex/docstates/pkg/actions/setcontext"
	"github.com/dukex/docstates/pkg/registry"
)

func registerNativeActions(reg *registry.Registry) {
	reg.RegisterAction(httprequest.NewActionFactory())
	reg.RegisterAction(setcontext.NewActionFactory())
	reg.RegisterAction(logaction.NewActionFactory())
}

func NewRegistry(log *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(log)

	registerNativeActions(reg)

	return reg
}
