package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainState  = "strata/state/v1"
	DomainAction = "strata/action/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// StateHash computes the content address of a state tree. Two trees hash
// equal iff they are structurally equal (modulo NFC normalization).
func StateHash(state Object) (string, error) {
	canonical, err := MarshalCanonical(state)
	if err != nil {
		return "", fmt.Errorf("StateHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainState, canonical), nil
}

// ActionHash computes the content address of an action from its JSON
// envelope.
func ActionHash(a Action) (string, error) {
	env, err := ActionEnvelope(a)
	if err != nil {
		return "", fmt.Errorf("ActionHash: %w", err)
	}
	canonical, err := MarshalCanonical(env)
	if err != nil {
		return "", fmt.Errorf("ActionHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainAction, canonical), nil
}

// MustStateHash is like StateHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustStateHash(state Object) string {
	h, err := StateHash(state)
	if err != nil {
		panic(err)
	}
	return h
}
