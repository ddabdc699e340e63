// Package allowlist rejects transactions that call outside the sponsored
// package.
package allowlist

import (
	"errors"
	"fmt"
	"strings"

	"github.com/drsui/gas-station/internal/app/domain/txn"
)

// ErrUnauthorizedTarget marks a move call outside the allowed package.
var ErrUnauthorizedTarget = errors.New("unauthorized move call target")

// Validator applies the allow-by-prefix policy: a move call passes when its
// fully-qualified target starts with the allowed package identifier, so
// callers may address any module or function inside that package. Commands
// that are not move calls are never inspected.
type Validator struct {
	allowedPackage string
}

// New creates a validator for one allowed package identifier.
func New(allowedPackage string) *Validator {
	return &Validator{allowedPackage: strings.TrimSpace(allowedPackage)}
}

// AllowedPackage returns the configured package prefix.
func (v *Validator) AllowedPackage() string { return v.allowedPackage }

// Validate walks the command list in order and fails on the first move call
// whose target does not carry the allowed prefix; commands after it are not
// evaluated. A transaction with zero commands passes trivially.
func (v *Validator) Validate(tx *txn.Transaction) error {
	if v.allowedPackage == "" {
		return fmt.Errorf("%w: no package allowed for sponsorship", ErrUnauthorizedTarget)
	}
	for _, cmd := range tx.Commands {
		if cmd.Kind != txn.KindMoveCall {
			continue
		}
		if !strings.HasPrefix(cmd.Target, v.allowedPackage) {
			return fmt.Errorf("%w: %s", ErrUnauthorizedTarget, cmd.Target)
		}
	}
	return nil
}
