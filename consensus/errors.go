// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package consensus classifies protocol failures.
package consensus

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is the class of a rejection. Every kind except a failing checkpoint is
// recovered locally by the node.
type Kind uint8

const (
	CryptoInvalid Kind = iota + 1
	ProtocolInvalid
	StateMismatch
	DoubleSpend
	SelfInconsistency
	Timeout
)

func (k Kind) String() string {
	switch k {
	case CryptoInvalid:
		return "CryptoInvalid"
	case ProtocolInvalid:
		return "ProtocolInvalid"
	case StateMismatch:
		return "StateMismatch"
	case DoubleSpend:
		return "DoubleSpend"
	case SelfInconsistency:
		return "SelfInconsistency"
	case Timeout:
		return "Timeout"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Error is a classified consensus failure.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	return e.Kind.String() + ": " + e.Msg
}

// New returns an error of the given kind.
func New(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or 0 if err is not a consensus error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Is reports whether err is a consensus error of the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsCritical reports whether err is not a consensus rejection, such as an I/O failure.
func IsCritical(err error) bool {
	return err != nil && KindOf(err) == 0
}
