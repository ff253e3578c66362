package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/strata/internal/ir"
)

// marshalState converts a state tree to canonical JSON TEXT for storage.
func marshalState(state ir.Object) (string, error) {
	data, err := ir.MarshalCanonical(state)
	if err != nil {
		return "", fmt.Errorf("marshal state: %w", err)
	}
	return string(data), nil
}

// unmarshalState parses canonical JSON TEXT to a state tree.
// Uses ir.Object.UnmarshalJSON which decodes integers via json.Number
// to avoid float64 precision loss for values > 2^53.
func unmarshalState(data string) (ir.Object, error) {
	var obj ir.Object
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return obj, nil
}

// marshalAction converts an action to its canonical JSON envelope.
func marshalAction(a ir.Action) (string, error) {
	env, err := ir.ActionEnvelope(a)
	if err != nil {
		return "", fmt.Errorf("marshal action: %w", err)
	}
	data, err := ir.MarshalCanonical(env)
	if err != nil {
		return "", fmt.Errorf("marshal action: %w", err)
	}
	return string(data), nil
}

func unmarshalAction(data string) (ir.Action, error) {
	a, err := ir.UnmarshalAction([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal action: %w", err)
	}
	return a, nil
}
