// Copyright 2026 The walletcore Authors
// This file is part of the walletcore library.
//
// The walletcore library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The walletcore library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the walletcore library. If not, see <http://www.gnu.org/licenses/>.

// Package walleterr defines the stable error kinds surfaced by the wallet
// core. Callers classify failures with errors.Is against the sentinel values
// below; every subsystem wraps its underlying cause with exactly one kind.
package walleterr

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned for malformed amounts, addresses or
	// unsupported chains.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrPrecondition is returned when a request is well formed but cannot
	// proceed: insufficient balance, session already closed, wrong
	// participant.
	ErrPrecondition = errors.New("precondition failed")

	// ErrUnavailable is returned when a remote dependency is unreachable
	// past its retry budget.
	ErrUnavailable = errors.New("unavailable")

	// ErrUnauthenticated is returned when the clearing node refuses the
	// session handshake.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrTimeout is returned when an RPC or HTTP call exceeds its deadline.
	ErrTimeout = errors.New("timeout")

	// ErrNotFound is returned for unknown session, channel or seed ids.
	ErrNotFound = errors.New("not found")

	// ErrInternal is returned for parse failures and invariant violations.
	ErrInternal = errors.New("internal error")
)

// kinds in classification priority order.
var kinds = []error{
	ErrInvalidArgument,
	ErrPrecondition,
	ErrUnauthenticated,
	ErrTimeout,
	ErrNotFound,
	ErrUnavailable,
	ErrInternal,
}

// Wrap annotates err with the given kind and a formatted message. A nil err
// yields a new error of that kind.
func Wrap(kind error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{kind}, args...)...)
}

// Classify returns the error kind carried by err, or ErrInternal if err does
// not wrap any known kind. A nil err classifies to nil.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return ErrInternal
}
