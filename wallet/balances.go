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
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/clearmesh/walletcore/indexer"
	"github.com/clearmesh/walletcore/params"
)

// NativeBalance is one chain's native token balance, normalized to the fixed
// 18-decimal representation.
type NativeBalance struct {
	Chain   params.Chain
	Address string
	Symbol  string
	Balance string
	Err     error
}

// TokenBalance is one non-zero token holding. Address is nil for the native
// token. Balance is normalized to 18 decimals by right-padding.
type TokenBalance struct {
	Chain    string
	Address  *string
	Symbol   string
	Balance  string
	Decimals int
}

// positionsFor returns the cached indexer positions for (user, chain).
func (s *Service) positionsFor(ctx context.Context, userID string, chain params.Chain) ([]indexer.Position, error) {
	key := cacheKey(userID, chain)
	if ps, ok := s.positions.Get(key); ok {
		return ps, nil
	}
	v, err, _ := s.sf.Do("pos|"+key, func() (interface{}, error) {
		if ps, ok := s.positions.Get(key); ok {
			return ps, nil
		}
		acct, err := s.account(ctx, userID, chain)
		if err != nil {
			return nil, err
		}
		ps, err := s.cfg.Indexer.Portfolio(ctx, acct.Address(), indexerChainID(chain))
		if err != nil {
			return nil, err
		}
		s.positions.Put(key, ps)
		return ps, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]indexer.Position), nil
}

// Balances maps every configured chain to its native balance. Per-chain
// failures are reported in the entry, never aborting the other chains.
func (s *Service) Balances(ctx context.Context, userID string) (map[params.Chain]NativeBalance, error) {
	var (
		mu  sync.Mutex
		out = make(map[params.Chain]NativeBalance, len(s.chains))
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, chain := range s.chains {
		chain := chain
		g.Go(func() error {
			res := s.nativeBalance(gctx, userID, chain)
			mu.Lock()
			out[chain] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// nativeBalance reads one chain's native balance from the indexer, degrading
// to the signer-side balance when the indexer is unavailable.
func (s *Service) nativeBalance(ctx context.Context, userID string, chain params.Chain) NativeBalance {
	res := NativeBalance{Chain: chain, Symbol: params.NativeSymbol(chain)}
	acct, err := s.account(ctx, userID, chain)
	if err != nil {
		res.Err = err
		return res
	}
	res.Address = acct.Address()

	positions, err := s.positionsFor(ctx, userID, chain)
	if err != nil {
		s.log.Warn("Indexer unavailable, using signer balance", "user", userID, "chain", chain, "err", err)
		bal, berr := acct.Balance(ctx)
		if berr != nil {
			res.Err = err
			return res
		}
		res.Balance = normalize18(bal.String(), params.NativeDecimals(chain))
		return res
	}
	res.Balance = "0"
	for _, p := range positions {
		if isNativePosition(p, indexerChainID(chain)) {
			res.Balance = normalize18(p.Attributes.Quantity.Int, p.Attributes.Quantity.Decimals)
			break
		}
	}
	return res
}

// TokenBalances lists the user's non-zero holdings on one chain. Indexer
// failure degrades to an empty list.
func (s *Service) TokenBalances(ctx context.Context, userID string, chain params.Chain) ([]TokenBalance, error) {
	positions, err := s.positionsFor(ctx, userID, chain)
	if err != nil {
		s.log.Warn("Token discovery degraded to empty", "user", userID, "chain", chain, "err", err)
		return nil, nil
	}
	out := make([]TokenBalance, 0, len(positions))
	for _, p := range positions {
		if tb, ok := tokenBalanceFrom(p, indexerChainID(chain)); ok {
			out = append(out, tb)
		}
	}
	return out, nil
}

// tokenBalanceFrom maps one position onto a TokenBalance. Zero and
// non-displayable positions are dropped.
func tokenBalanceFrom(p indexer.Position, chainID string) (TokenBalance, bool) {
	if !p.Attributes.Flags.Displayable {
		return TokenBalance{}, false
	}
	qty := p.Attributes.Quantity
	if isZeroAmount(qty.Int) {
		return TokenBalance{}, false
	}
	tb := TokenBalance{
		Chain:    chainID,
		Symbol:   p.Attributes.FungibleInfo.Symbol,
		Balance:  normalize18(qty.Int, qty.Decimals),
		Decimals: qty.Decimals,
	}
	if impl, ok := implementationFor(p, chainID); ok && impl.Address != "" {
		addr := impl.Address
		tb.Address = &addr
	}
	return tb, true
}

// implementationFor finds the token deployment for chainID.
func implementationFor(p indexer.Position, chainID string) (indexer.Implementation, bool) {
	for _, impl := range p.Attributes.FungibleInfo.Implementations {
		if strings.EqualFold(impl.ChainID, chainID) {
			return impl, true
		}
	}
	return indexer.Implementation{}, false
}

// isNativePosition reports whether p holds the chain's gas token: either the
// matching implementation has no contract address, or the token has no
// implementations at all.
func isNativePosition(p indexer.Position, chainID string) bool {
	if len(p.Attributes.FungibleInfo.Implementations) == 0 {
		return true
	}
	impl, ok := implementationFor(p, chainID)
	return ok && impl.Address == ""
}

func isZeroAmount(intStr string) bool {
	return strings.Trim(intStr, "0") == ""
}

// normalize18 rescales a smallest-unit integer string from the token's
// decimals to the fixed 18-decimal representation. Scaling down truncates.
func normalize18(intStr string, decimals int) string {
	if isZeroAmount(intStr) {
		return "0"
	}
	switch {
	case decimals == 18:
		return intStr
	case decimals < 18:
		return intStr + strings.Repeat("0", 18-decimals)
	default:
		cut := decimals - 18
		if len(intStr) <= cut {
			return "0"
		}
		return intStr[:len(intStr)-cut]
	}
}
