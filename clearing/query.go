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

package clearing

import (
	"context"
	"time"

	"github.com/clearmesh/walletcore/walleterr"
)

// QueryService is the read side of the clearing node.
type QueryService struct {
	c *Client
}

// NewQueryService creates a query service on top of c.
func NewQueryService(c *Client) *QueryService {
	return &QueryService{c: c}
}

// Ping checks connectivity. It is unsigned. A missing or null reply defaults
// to a local pong.
func (q *QueryService) Ping(ctx context.Context) (*PingResult, error) {
	var result PingResult
	if err := q.c.call(ctx, MethodPing, struct{}{}, &result); err != nil {
		return nil, err
	}
	if result.Pong == "" {
		result = PingResult{Pong: "pong", Timestamp: uint64(time.Now().UnixMilli())}
	}
	return &result, nil
}

type ledgerBalancesParams struct {
	AccountID string `json:"account_id,omitempty"`
}

type ledgerBalancesResult struct {
	LedgerBalances []LedgerBalance `json:"ledger_balances"`
}

// GetLedgerBalances returns the per-asset balances of accountID, or of the
// authenticated wallet when accountID is empty.
func (q *QueryService) GetLedgerBalances(ctx context.Context, accountID string) ([]LedgerBalance, error) {
	var result ledgerBalancesResult
	if err := q.c.call(ctx, MethodGetLedgerBalances, ledgerBalancesParams{AccountID: accountID}, &result); err != nil {
		return nil, err
	}
	return result.LedgerBalances, nil
}

// AppSessionFilter narrows GetAppSessions.
type AppSessionFilter struct {
	Status      string `json:"status,omitempty"`
	Participant string `json:"participant,omitempty"`
}

type appSessionsResult struct {
	AppSessions []AppSessionInfo `json:"app_sessions"`
}

// GetAppSessions lists app sessions matching the filter. The bare listing
// may omit participants; use GetAppSession for the merged view.
func (q *QueryService) GetAppSessions(ctx context.Context, filter AppSessionFilter) ([]AppSessionInfo, error) {
	var result appSessionsResult
	if err := q.c.call(ctx, MethodGetAppSessions, filter, &result); err != nil {
		return nil, err
	}
	return result.AppSessions, nil
}

type channelsResult struct {
	Channels []ChannelInfo `json:"channels"`
}

// GetChannels lists the wallet's payment channels.
func (q *QueryService) GetChannels(ctx context.Context) ([]ChannelInfo, error) {
	var result channelsResult
	if err := q.c.call(ctx, MethodGetChannels, struct{}{}, &result); err != nil {
		return nil, err
	}
	return result.Channels, nil
}

// LedgerTransactionFilter narrows GetLedgerTransactions.
type LedgerTransactionFilter struct {
	Asset  string
	TxType string
	Limit  int
	Offset int
}

type ledgerTransactionsParams struct {
	pageParams
	Asset  string `json:"asset,omitempty"`
	TxType string `json:"tx_type,omitempty"`
}

type ledgerTransactionsResult struct {
	LedgerTransactions []LedgerTransaction `json:"ledger_transactions"`
}

// GetLedgerTransactions returns ledger transactions matching the filter,
// paginated with the node's {page:{size}, offset} convention.
func (q *QueryService) GetLedgerTransactions(ctx context.Context, filter LedgerTransactionFilter) ([]LedgerTransaction, error) {
	params := ledgerTransactionsParams{Asset: filter.Asset, TxType: filter.TxType}
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	params.Page.Size = filter.Limit
	params.Offset = filter.Offset

	var result ledgerTransactionsResult
	if err := q.c.call(ctx, MethodGetLedgerTransactions, params, &result); err != nil {
		return nil, err
	}
	return result.LedgerTransactions, nil
}

type appDefinitionParams struct {
	AppSessionID string `json:"app_session_id"`
}

// GetAppDefinition returns the definition of one session. It is unsigned.
func (q *QueryService) GetAppDefinition(ctx context.Context, appSessionID string) (*AppDefinition, error) {
	var result AppDefinition
	if err := q.c.call(ctx, MethodGetAppDefinition, appDefinitionParams{AppSessionID: appSessionID}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetAppSession returns one session with its definition merged in. The bare
// sessions listing may omit participants for privacy; the definition fills
// them back in.
func (q *QueryService) GetAppSession(ctx context.Context, appSessionID string) (*AppSessionInfo, error) {
	sessions, err := q.GetAppSessions(ctx, AppSessionFilter{})
	if err != nil {
		return nil, err
	}
	var session *AppSessionInfo
	for i := range sessions {
		if sessions[i].AppSessionID == appSessionID {
			session = &sessions[i]
			break
		}
	}
	if session == nil {
		return nil, walleterr.Wrap(walleterr.ErrNotFound, "unknown app session %s", appSessionID)
	}
	def, err := q.GetAppDefinition(ctx, appSessionID)
	if err != nil {
		return nil, err
	}
	session.Protocol = def.Protocol
	session.Participants = def.Participants
	session.Weights = def.Weights
	session.Quorum = def.Quorum
	return session, nil
}
