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

	"golang.org/x/sync/errgroup"
)

// StreamAddresses derives all chains in parallel and emits each result as it
// completes, in completion order. Exactly one result per configured chain is
// produced; the channel closes when all chains finished or ctx is cancelled.
// The channel is buffered for all chains, so abandoned consumers never leak
// workers.
func (s *Service) StreamAddresses(ctx context.Context, userID string) <-chan ChainAddress {
	out := make(chan ChainAddress, len(s.chains))
	g, gctx := errgroup.WithContext(ctx)
	for _, chain := range s.chains {
		chain := chain
		g.Go(func() error {
			res := ChainAddress{Chain: chain}
			acct, err := s.account(gctx, userID, chain)
			if err != nil {
				res.Err = err
			} else {
				res.Address = acct.Address()
			}
			select {
			case out <- res:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	go func() {
		g.Wait()
		close(out)
	}()
	return out
}

// StreamBalances emits each chain's native balance as it resolves. Semantics
// match StreamAddresses: one item per chain, completion order, closed when
// done.
func (s *Service) StreamBalances(ctx context.Context, userID string) <-chan NativeBalance {
	out := make(chan NativeBalance, len(s.chains))
	g, gctx := errgroup.WithContext(ctx)
	for _, chain := range s.chains {
		chain := chain
		g.Go(func() error {
			res := s.nativeBalance(gctx, userID, chain)
			select {
			case out <- res:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	go func() {
		g.Wait()
		close(out)
	}()
	return out
}
