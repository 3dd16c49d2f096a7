package workflow

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"

	"github.com/dukex/docstates/pkg/models"
)

// StateHash fingerprints a state: its own fields, then each action, then each escalation in declaration order.
func StateHash(state *models.State) (string, error) {
	h := sha256.New()

	if err := updateStateHash(h, state); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// TemplateHash fingerprints a whole template. It changes whenever anything the engine executes changes.
func TemplateHash(template *models.WorkflowTemplate) (string, error) {
	h := sha256.New()

	err := writeJSON(h, struct {
		ID              string   `json:"id"`
		Label           string   `json:"label"`
		InternalName    string   `json:"internal_name"`
		AutoLaunch      bool     `json:"auto_launch"`
		IgnoreCompleted bool     `json:"ignore_completed"`
		DocumentTypeIDs []string `json:"document_type_ids"`
	}{
		template.ID, template.Label, template.InternalName,
		template.AutoLaunch, template.IgnoreCompleted, template.DocumentTypeIDs,
	})
	if err != nil {
		return "", err
	}

	for _, state := range template.States {
		if err := updateStateHash(h, state); err != nil {
			return "", err
		}
	}

	for _, transition := range template.Transitions {
		if err := writeJSON(h, transition); err != nil {
			return "", err
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func updateStateHash(h hash.Hash, state *models.State) error {
	err := writeJSON(h, struct {
		ID         string `json:"id"`
		Label      string `json:"label"`
		Initial    bool   `json:"initial"`
		Final      bool   `json:"final"`
		Completion int    `json:"completion"`
	}{state.ID, state.Label, state.Initial, state.Final, state.Completion})
	if err != nil {
		return err
	}

	for _, action := range state.Actions {
		if err := writeJSON(h, action); err != nil {
			return err
		}
	}

	for _, escalation := range state.Escalations {
		if err := writeJSON(h, escalation); err != nil {
			return err
		}
	}

	return nil
}

// writeJSON feeds the JSON encoding of value to h. encoding/json sorts map keys, so the output is canonical.
func writeJSON(h hash.Hash, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %T for hashing: %w", value, err)
	}

	_, _ = h.Write(encoded)

	return nil
}
