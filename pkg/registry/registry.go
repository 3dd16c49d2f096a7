// Package registry resolves action type identifiers to their factories.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/dukex/docstates/pkg/models"
	"github.com/dukex/docstates/pkg/protocol"
)

var ErrActionNotRegistered = errors.New("action type not registered")

type Registry struct {
	logger          *slog.Logger
	mu              sync.RWMutex
	actionFactories map[string]protocol.ActionFactory
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:          log,
		actionFactories: make(map[string]protocol.ActionFactory),
	}
}

func (r *Registry) RegisterAction(actionFactory protocol.ActionFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.actionFactories[actionFactory.ID()]; exists {
		r.logger.Warn("Replacing registered action factory", "type", actionFactory.ID())
	}

	r.actionFactories[actionFactory.ID()] = actionFactory
}

func (r *Registry) CreateAction(actionType string, config map[string]any) (protocol.Action, error) {
	r.mu.RLock()
	factory, ok := r.actionFactories[actionType]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("action type '%s': %w", actionType, ErrActionNotRegistered)
	}

	if config == nil {
		config = map[string]any{}
	}

	return factory.Create(config)
}

// Bind resolves the backend of a state action.
func (r *Registry) Bind(action *models.StateAction) (protocol.Action, error) {
	backend, err := r.CreateAction(action.Type, action.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to bind action %s (%s): %w", action.ID, action.Label, err)
	}

	return backend, nil
}

// ActionFactories returns the registered factories ordered by ID.
func (r *Registry) ActionFactories() []protocol.ActionFactory {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factories := make([]protocol.ActionFactory, 0, len(r.actionFactories))
	for _, factory := range r.actionFactories {
		factories = append(factories, factory)
	}

	sort.Slice(factories, func(i, j int) bool {
		return factories[i].ID() < factories[j].ID()
	})

	return factories
}
