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
	"strconv"
	"strings"
	"time"

	"github.com/clearmesh/walletcore/indexer"
	"github.com/clearmesh/walletcore/params"
)

// Transaction statuses exposed by the history API.
const (
	TxSuccess = "success"
	TxFailed  = "failed"
	TxPending = "pending"
)

const defaultHistoryLimit = 50

// TransactionRecord is one wallet transaction in the normalized shape.
type TransactionRecord struct {
	TxHash       string
	From         string
	To           string
	Value        string
	Timestamp    time.Time
	BlockNumber  int64
	Status       string
	Chain        string
	TokenSymbol  string
	TokenAddress string
}

// TransactionHistory returns the user's recent transactions on one chain,
// newest first as delivered by the indexer.
func (s *Service) TransactionHistory(ctx context.Context, userID string, chain params.Chain, limit int) ([]TransactionRecord, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	txs, err := s.transactionsFor(ctx, userID, chain, limit)
	if err != nil {
		return nil, err
	}
	out := make([]TransactionRecord, 0, len(txs))
	for _, tx := range txs {
		out = append(out, mapTransaction(tx, indexerChainID(chain)))
	}
	return out, nil
}

// historyEntry keeps the fetch limit next to the cached page. The cache is
// keyed by (user, chain) alone so a send can invalidate it without knowing
// which limits callers used.
type historyEntry struct {
	limit int
	txs   []indexer.Transaction
}

func (s *Service) transactionsFor(ctx context.Context, userID string, chain params.Chain, limit int) ([]indexer.Transaction, error) {
	key := cacheKey(userID, chain)
	if e, ok := s.history.Get(key); ok && e.limit == limit {
		return e.txs, nil
	}
	v, err, _ := s.sf.Do("tx|"+key+"|"+strconv.Itoa(limit), func() (interface{}, error) {
		if e, ok := s.history.Get(key); ok && e.limit == limit {
			return e.txs, nil
		}
		acct, err := s.account(ctx, userID, chain)
		if err != nil {
			return nil, err
		}
		txs, err := s.cfg.Indexer.Transactions(ctx, acct.Address(), indexerChainID(chain), limit)
		if err != nil {
			return nil, err
		}
		s.history.Put(key, historyEntry{limit: limit, txs: txs})
		return txs, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]indexer.Transaction), nil
}

// mapTransaction normalizes one indexer transaction. When several transfers
// exist, the first one supplies the token fields and the recipient.
func mapTransaction(tx indexer.Transaction, chainID string) TransactionRecord {
	attrs := tx.Attributes
	rec := TransactionRecord{
		TxHash:      attrs.Hash,
		From:        attrs.SentFrom,
		To:          attrs.SentTo,
		Timestamp:   attrs.MinedAt,
		BlockNumber: attrs.MinedAtBlock,
		Status:      txStatus(attrs),
		Chain:       chainID,
	}
	if txChain := tx.Relationships.Chain.Data.ID; txChain != "" {
		rec.Chain = txChain
	}
	if len(attrs.Transfers) > 0 {
		first := attrs.Transfers[0]
		rec.Value = first.Quantity.Int
		rec.TokenSymbol = first.FungibleInfo.Symbol
		if first.Recipient != "" {
			rec.To = first.Recipient
		}
		for _, impl := range first.FungibleInfo.Implementations {
			if strings.EqualFold(impl.ChainID, rec.Chain) && impl.Address != "" {
				rec.TokenAddress = impl.Address
				break
			}
		}
	}
	return rec
}

// txStatus derives the normalized status: an explicit terminal status wins,
// otherwise confirmations decide.
func txStatus(attrs indexer.TransactionAttributes) string {
	switch strings.ToLower(attrs.Status) {
	case "confirmed", "success":
		return TxSuccess
	case "failed", "error":
		return TxFailed
	}
	if attrs.BlockConfirmations > 0 {
		return TxSuccess
	}
	return TxPending
}
