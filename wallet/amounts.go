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

package wallet

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/clearmesh/walletcore/walleterr"
)

// maxTokenDecimals bounds accepted decimals() values; anything beyond is
// treated as a bogus contract reply.
const maxTokenDecimals = 36

// ToSmallestUnits losslessly converts a human-readable amount to smallest
// units at the given decimals. Fractional digits beyond decimals truncate;
// they are never rounded. Zero and negative amounts are rejected.
func ToSmallestUnits(amount string, decimals int) (*big.Int, error) {
	if decimals < 0 || decimals > maxTokenDecimals {
		return nil, walleterr.Wrap(walleterr.ErrInvalidArgument, "decimals %d outside [0, %d]", decimals, maxTokenDecimals)
	}
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return nil, walleterr.Wrap(walleterr.ErrInvalidArgument, "bad amount %q: %v", amount, err)
	}
	if !d.IsPositive() {
		return nil, walleterr.Wrap(walleterr.ErrInvalidArgument, "amount %q must be positive", amount)
	}
	smallest := d.Shift(int32(decimals)).Truncate(0)
	if smallest.IsZero() {
		return nil, walleterr.Wrap(walleterr.ErrInvalidArgument, "amount %q is below one smallest unit at %d decimals", amount, decimals)
	}
	return smallest.BigInt(), nil
}
