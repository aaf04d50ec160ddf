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

// Package signer declares the capabilities the wallet core consumes from the
// external signer/derivation service. Key derivation and transaction signing
// themselves live outside the core.
package signer

import (
	"context"
	"math/big"

	"github.com/clearmesh/walletcore/params"
)

// TransferKind tags one way of moving funds an account supports. The
// aggregator tries kinds in the fixed priority order below instead of
// probing method names.
type TransferKind int

const (
	// NativeSend moves the chain's native token: send(recipient, amount).
	NativeSend TransferKind = iota
	// TokenTransferStruct is transfer({token, recipient, amount}).
	TokenTransferStruct
	// TokenTransferTriple is transfer({token, to, amount}).
	TokenTransferTriple
	// SendToken is sendToken(token, recipient, amount).
	SendToken
	// TransferToken is transferToken(token, recipient, amount).
	TransferToken
	// GenericSend is send(recipient, amount, {tokenAddress}).
	GenericSend
)

// String implements fmt.Stringer.
func (k TransferKind) String() string {
	switch k {
	case NativeSend:
		return "native-send"
	case TokenTransferStruct:
		return "token-transfer-struct"
	case TokenTransferTriple:
		return "token-transfer-triple"
	case SendToken:
		return "send-token"
	case TransferToken:
		return "transfer-token"
	case GenericSend:
		return "generic-send"
	default:
		return "unknown"
	}
}

// TokenKindPriority is the order token transfer paths are attempted in.
var TokenKindPriority = []TransferKind{
	TokenTransferStruct,
	TokenTransferTriple,
	SendToken,
	TransferToken,
	GenericSend,
}

// TransferRequest describes one outgoing transfer in smallest units. Token
// is empty for native transfers.
type TransferRequest struct {
	To     string
	Amount *big.Int
	Token  string
}

// TransferPath is one advertised way to execute a transfer.
type TransferPath struct {
	Kind TransferKind
	Send func(ctx context.Context, req TransferRequest) (txHash string, err error)
}

// Account is a derived per-chain account.
type Account interface {
	// Address returns the account's on-chain address in the chain's native
	// format.
	Address() string

	// Balance returns the native token balance in smallest units.
	Balance(ctx context.Context) (*big.Int, error)

	// TransferPaths advertises the transfer capabilities of this account.
	TransferPaths() []TransferPath
}

// TokenBalancer is implemented by accounts that can report ERC-20 style
// token balances directly.
type TokenBalancer interface {
	TokenBalance(ctx context.Context, token string) (*big.Int, error)
}

// ContractCaller is implemented by accounts whose backing provider exposes
// an eth_call style read. Used for decimals() and balanceOf() fallbacks.
type ContractCaller interface {
	CallContract(ctx context.Context, to string, data []byte) ([]byte, error)
}

// Deriver turns seed material into per-chain accounts.
type Deriver interface {
	Derive(ctx context.Context, seed []byte, chain params.Chain, index uint32) (Account, error)
}
