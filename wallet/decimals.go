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
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"golang.org/x/sync/singleflight"

	"github.com/clearmesh/walletcore/internal/ttlcache"
	"github.com/clearmesh/walletcore/params"
	"github.com/clearmesh/walletcore/signer"
)

// erc20DecimalsCall is the calldata for decimals().
var erc20DecimalsCall = []byte{0x31, 0x3c, 0xe5, 0x67}

const decimalsTTL = time.Hour

type decimalsCache struct {
	cache *ttlcache.Cache[string, int]
	sf    singleflight.Group
}

func newDecimalsCache(clk clock.Clock) *decimalsCache {
	return &decimalsCache{cache: ttlcache.New[string, int](decimalsTTL, clk)}
}

// tokenDecimals resolves a token's decimals: the contract's decimals() call
// first, then the indexer's token metadata, then the default of 18.
func (s *Service) tokenDecimals(ctx context.Context, userID string, chain params.Chain, token string) int {
	key := string(chain) + "|" + strings.ToLower(token)
	if d, ok := s.decimals.cache.Get(key); ok {
		return d
	}
	v, _, _ := s.decimals.sf.Do(key, func() (interface{}, error) {
		d := s.resolveDecimals(ctx, userID, chain, token)
		s.decimals.cache.Put(key, d)
		return d, nil
	})
	return v.(int)
}

func (s *Service) resolveDecimals(ctx context.Context, userID string, chain params.Chain, token string) int {
	if isEVM(chain) {
		if acct, err := s.account(ctx, userID, chain); err == nil {
			if caller, ok := acct.(signer.ContractCaller); ok {
				if d, ok := decimalsFromCall(ctx, caller, token); ok {
					return d
				}
			}
		}
	}
	if positions, err := s.positionsFor(ctx, userID, chain); err == nil {
		chainID := indexerChainID(chain)
		for _, p := range positions {
			for _, impl := range p.Attributes.FungibleInfo.Implementations {
				if strings.EqualFold(impl.ChainID, chainID) && strings.EqualFold(impl.Address, token) {
					if impl.Decimals >= 0 && impl.Decimals <= maxTokenDecimals {
						return impl.Decimals
					}
				}
			}
		}
	}
	s.log.Warn("Token decimals unresolved, defaulting to 18", "chain", chain, "token", token)
	return 18
}

// isEVM reports whether chain speaks the EVM contract ABI; only those chains
// can answer decimals() and balanceOf() calls.
func isEVM(chain params.Chain) bool {
	fam, ok := params.ChainFamily(chain)
	return ok && (fam == params.FamilyEVM || fam == params.FamilyEVMAA)
}

// decimalsFromCall reads decimals() through the account's provider. An empty
// or out-of-range reply is treated as unresolved.
func decimalsFromCall(ctx context.Context, caller signer.ContractCaller, token string) (int, bool) {
	out, err := caller.CallContract(ctx, token, erc20DecimalsCall)
	if err != nil || len(out) == 0 || len(out) > 32 {
		return 0, false
	}
	d := new(big.Int).SetBytes(out)
	if !d.IsInt64() || d.Int64() > maxTokenDecimals {
		return 0, false
	}
	return int(d.Int64()), true
}
