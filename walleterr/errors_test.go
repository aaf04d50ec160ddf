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

package walleterr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapCarriesKind(t *testing.T) {
	err := Wrap(ErrPrecondition, "balance %d too low", 42)
	require.ErrorIs(t, err, ErrPrecondition)
	require.Contains(t, err.Error(), "balance 42 too low")

	// Rewrapping keeps the kind visible through the chain.
	outer := fmt.Errorf("transfer: %w", err)
	require.ErrorIs(t, outer, ErrPrecondition)
}

func TestClassify(t *testing.T) {
	require.Nil(t, Classify(nil))

	cases := []struct {
		err  error
		want error
	}{
		{Wrap(ErrInvalidArgument, "bad amount"), ErrInvalidArgument},
		{Wrap(ErrTimeout, "ping"), ErrTimeout},
		{fmt.Errorf("outer: %w", Wrap(ErrUnavailable, "dial")), ErrUnavailable},
		{errors.New("unclassified"), ErrInternal},
		{ErrNotFound, ErrNotFound},
	}
	for _, tc := range cases {
		require.Same(t, tc.want, Classify(tc.err), "classifying %v", tc.err)
	}
}
