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

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/clearmesh/walletcore/indexer"
)

// TokenBalancesAny aggregates token holdings across all chains for the
// user's primary addresses. Duplicates are collapsed by
// (chain, implementation address | native), first seen wins.
func (s *Service) TokenBalancesAny(ctx context.Context, userID string) ([]TokenBalance, error) {
	addrs, err := s.primaryAddresses(ctx, userID)
	if err != nil {
		return nil, err
	}
	seen := mapset.NewSet[string]()
	var out []TokenBalance
	for _, addr := range addrs {
		positions, err := s.cfg.Indexer.Portfolio(ctx, addr, "")
		if err != nil {
			s.log.Warn("Any-chain portfolio fetch failed", "address", addr, "err", err)
			continue
		}
		for _, p := range positions {
			chainID := p.Relationships.Chain.Data.ID
			tb, ok := tokenBalanceFrom(p, chainID)
			if !ok {
				continue
			}
			if seen.Add(tokenKey(chainID, tb.Address)) {
				out = append(out, tb)
			}
		}
	}
	return out, nil
}

// TransactionsAny aggregates transactions across all chains for the user's
// primary addresses, deduplicated by (chain, tx hash), first seen wins.
func (s *Service) TransactionsAny(ctx context.Context, userID string, limit int) ([]TransactionRecord, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	addrs, err := s.primaryAddresses(ctx, userID)
	if err != nil {
		return nil, err
	}
	seen := mapset.NewSet[string]()
	var out []TransactionRecord
	for _, addr := range addrs {
		txs, err := s.cfg.Indexer.Transactions(ctx, addr, "", limit)
		if err != nil {
			s.log.Warn("Any-chain transaction fetch failed", "address", addr, "err", err)
			continue
		}
		for _, tx := range txs {
			rec := mapTransaction(tx, txChainID(tx))
			if seen.Add(rec.Chain + "|" + strings.ToLower(rec.TxHash)) {
				out = append(out, rec)
			}
		}
	}
	return out, nil
}

func tokenKey(chainID string, addr *string) string {
	token := "native"
	if addr != nil {
		token = strings.ToLower(*addr)
	}
	return chainID + "|" + token
}

func txChainID(tx indexer.Transaction) string {
	return tx.Relationships.Chain.Data.ID
}
