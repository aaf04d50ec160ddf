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

package indexer

import "time"

// document is the JSON:API response envelope.
type document[T any] struct {
	Data []T `json:"data"`
}

// Position is one fungible holding of a wallet.
type Position struct {
	Type          string             `json:"type"`
	ID            string             `json:"id"`
	Attributes    PositionAttributes `json:"attributes"`
	Relationships Relationships      `json:"relationships"`
}

// PositionAttributes carries the quantity and token metadata of a position.
type PositionAttributes struct {
	Quantity     Quantity     `json:"quantity"`
	FungibleInfo FungibleInfo `json:"fungible_info"`
	Flags        struct {
		Displayable bool `json:"displayable"`
	} `json:"flags"`
}

// Quantity represents a token amount in several encodings; Int is the
// smallest-unit integer string.
type Quantity struct {
	Int      string  `json:"int"`
	Decimals int     `json:"decimals"`
	Float    float64 `json:"float"`
	Numeric  string  `json:"numeric"`
}

// FungibleInfo describes the token behind a position.
type FungibleInfo struct {
	Name            string           `json:"name"`
	Symbol          string           `json:"symbol"`
	Implementations []Implementation `json:"implementations"`
}

// Implementation is one on-chain deployment of a token. A missing Address
// denotes the chain's native token.
type Implementation struct {
	ChainID  string `json:"chain_id"`
	Address  string `json:"address"`
	Decimals int    `json:"decimals"`
}

// Relationships links a resource to its chain.
type Relationships struct {
	Chain struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	} `json:"chain"`
}

// Transaction is one indexed wallet transaction.
type Transaction struct {
	Type          string                `json:"type"`
	ID            string                `json:"id"`
	Attributes    TransactionAttributes `json:"attributes"`
	Relationships Relationships         `json:"relationships"`
}

// TransactionAttributes carries the core transaction fields.
type TransactionAttributes struct {
	OperationType       string     `json:"operation_type"`
	Hash                string     `json:"hash"`
	MinedAtBlock        int64      `json:"mined_at_block"`
	MinedAt             time.Time  `json:"mined_at"`
	SentFrom            string     `json:"sent_from"`
	SentTo              string     `json:"sent_to"`
	Status              string     `json:"status"`
	BlockConfirmations  int64      `json:"block_confirmations"`
	Transfers           []Transfer `json:"transfers"`
}

// Transfer is one value movement within a transaction.
type Transfer struct {
	FungibleInfo FungibleInfo `json:"fungible_info"`
	Direction    string       `json:"direction"`
	Quantity     Quantity     `json:"quantity"`
	Sender       string       `json:"sender"`
	Recipient    string       `json:"recipient"`
}
