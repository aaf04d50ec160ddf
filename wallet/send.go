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

	"github.com/ethereum/go-ethereum/common"

	"github.com/clearmesh/walletcore/params"
	"github.com/clearmesh/walletcore/signer"
	"github.com/clearmesh/walletcore/walleterr"
)

// erc20BalanceOfSelector is the 4-byte selector of balanceOf(address).
var erc20BalanceOfSelector = []byte{0x70, 0xa0, 0x82, 0x31}

// Balance sources reported in precondition failures.
const (
	sourceWDKBalance      = "wdk-getBalance"
	sourceWDKTokenBalance = "wdk-getTokenBalance"
	sourceBalanceOf       = "erc20-balanceOf"
	sourceIndexer         = "indexer-positions"
)

// SendRequest describes one outgoing transfer. Amount is in human units;
// Token is empty for the native token.
type SendRequest struct {
	UserID string
	Chain  params.Chain
	To     string
	Amount string
	Token  string
}

// SendResult reports a submitted transfer.
type SendResult struct {
	TxHash         string
	AmountSmallest *big.Int
	Decimals       int
	Kind           signer.TransferKind
}

// SendCrypto validates, converts and dispatches one transfer: resolve the
// token's decimals, convert the human amount losslessly, pre-check the
// balance, pick the highest-priority transfer path the account advertises and
// send. Indexer caches for the chain are invalidated after a successful send.
func (s *Service) SendCrypto(ctx context.Context, req SendRequest) (*SendResult, error) {
	if strings.TrimSpace(req.To) == "" {
		return nil, walleterr.Wrap(walleterr.ErrInvalidArgument, "empty recipient")
	}
	acct, err := s.account(ctx, req.UserID, req.Chain)
	if err != nil {
		return nil, err
	}

	decimals := params.NativeDecimals(req.Chain)
	if req.Token != "" {
		decimals = s.tokenDecimals(ctx, req.UserID, req.Chain, req.Token)
	}
	amount, err := ToSmallestUnits(req.Amount, decimals)
	if err != nil {
		return nil, err
	}

	available, source, err := s.availableBalance(ctx, req.UserID, acct, req.Chain, req.Token)
	if err != nil {
		s.log.Warn("Balance precheck unavailable, proceeding", "user", req.UserID, "chain", req.Chain, "err", err)
	} else if available.Cmp(amount) < 0 {
		return nil, walleterr.Wrap(walleterr.ErrPrecondition,
			"insufficient balance: availableSmallest=%s, requestedSmallest=%s, source=%s",
			available, amount, source)
	}

	path, err := transferPath(acct, req.Token != "")
	if err != nil {
		return nil, err
	}
	txHash, err := path.Send(ctx, signer.TransferRequest{
		To:     req.To,
		Amount: amount,
		Token:  req.Token,
	})
	if err != nil {
		return nil, err
	}

	s.invalidateChain(req.UserID, req.Chain)
	s.log.Info("Transfer submitted", "user", req.UserID, "chain", req.Chain, "kind", path.Kind, "tx", txHash)
	return &SendResult{
		TxHash:         txHash,
		AmountSmallest: amount,
		Decimals:       decimals,
		Kind:           path.Kind,
	}, nil
}

// availableBalance reads the spendable balance in smallest units, trying the
// richest source first: the signer itself, then a direct balanceOf call, then
// the indexer's positions.
func (s *Service) availableBalance(ctx context.Context, userID string, acct signer.Account, chain params.Chain, token string) (*big.Int, string, error) {
	if token == "" {
		bal, err := acct.Balance(ctx)
		if err != nil {
			return nil, "", err
		}
		return bal, sourceWDKBalance, nil
	}
	if tb, ok := acct.(signer.TokenBalancer); ok {
		bal, err := tb.TokenBalance(ctx, token)
		if err == nil {
			return bal, sourceWDKTokenBalance, nil
		}
		s.log.Debug("Signer token balance failed, falling back", "token", token, "err", err)
	}
	if caller, ok := acct.(signer.ContractCaller); ok && isEVM(chain) {
		if bal, ok := balanceOf(ctx, caller, acct.Address(), token); ok {
			return bal, sourceBalanceOf, nil
		}
	}
	positions, err := s.positionsFor(ctx, userID, chain)
	if err != nil {
		return nil, "", err
	}
	chainID := indexerChainID(chain)
	for _, p := range positions {
		impl, ok := implementationFor(p, chainID)
		if !ok || !strings.EqualFold(impl.Address, token) {
			continue
		}
		bal, ok := new(big.Int).SetString(p.Attributes.Quantity.Int, 10)
		if !ok {
			break
		}
		return bal, sourceIndexer, nil
	}
	return nil, "", walleterr.Wrap(walleterr.ErrNotFound, "no balance source for token %s on %s", token, chain)
}

// balanceOf reads an ERC-20 balance through the account's provider.
func balanceOf(ctx context.Context, caller signer.ContractCaller, holder, token string) (*big.Int, bool) {
	calldata := append(append([]byte(nil), erc20BalanceOfSelector...),
		common.LeftPadBytes(common.HexToAddress(holder).Bytes(), 32)...)
	out, err := caller.CallContract(ctx, token, calldata)
	if err != nil || len(out) == 0 || len(out) > 32 {
		return nil, false
	}
	return new(big.Int).SetBytes(out), true
}

// transferPath picks the path to use: NativeSend for native transfers, the
// first advertised kind in priority order for tokens.
func transferPath(acct signer.Account, token bool) (signer.TransferPath, error) {
	paths := acct.TransferPaths()
	if !token {
		for _, p := range paths {
			if p.Kind == signer.NativeSend {
				return p, nil
			}
		}
		return signer.TransferPath{}, walleterr.Wrap(walleterr.ErrInvalidArgument, "account advertises no native transfer path")
	}
	byKind := make(map[signer.TransferKind]signer.TransferPath, len(paths))
	for _, p := range paths {
		byKind[p.Kind] = p
	}
	for _, kind := range signer.TokenKindPriority {
		if p, ok := byKind[kind]; ok {
			return p, nil
		}
	}
	return signer.TransferPath{}, walleterr.Wrap(walleterr.ErrInvalidArgument, "account advertises no token transfer path")
}
