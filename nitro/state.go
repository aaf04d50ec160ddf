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

// Package nitro implements the payment channel primitives shared between the
// clearing node and the on-chain custody contract: channel identity, state
// encoding and custody calldata.
package nitro

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Intent marks the role of a channel state.
type Intent uint8

const (
	IntentInitialize Intent = 0
	IntentOperate    Intent = 1
	IntentResize     Intent = 2
	IntentFinalize   Intent = 3
)

// String implements fmt.Stringer.
func (i Intent) String() string {
	switch i {
	case IntentInitialize:
		return "INITIALIZE"
	case IntentOperate:
		return "OPERATE"
	case IntentResize:
		return "RESIZE"
	case IntentFinalize:
		return "FINALIZE"
	default:
		return fmt.Sprintf("Intent(%d)", uint8(i))
	}
}

// Allocation assigns an amount to a participant slot.
type Allocation struct {
	Index  *big.Int `json:"index"`
	Amount *big.Int `json:"amount"`
}

// State is one off-chain channel state. Version strictly increases for the
// lifetime of a channel; IntentInitialize implies version 0.
type State struct {
	Intent      Intent       `json:"intent"`
	Version     uint64       `json:"version"`
	Data        []byte       `json:"data"`
	Allocations []Allocation `json:"allocations"`
}

// Channel is the immutable tuple identifying a 2-party payment channel.
type Channel struct {
	Participants [2]common.Address `json:"participants"`
	Adjudicator  common.Address    `json:"adjudicator"`
	Challenge    *big.Int          `json:"challenge"`
	Nonce        *big.Int          `json:"nonce"`
}

var channelIDArgs abi.Arguments

func init() {
	participantsTy, err := abi.NewType("address[2]", "", nil)
	if err != nil {
		panic(err)
	}
	addressTy, err := abi.NewType("address", "", nil)
	if err != nil {
		panic(err)
	}
	uint256Ty, err := abi.NewType("uint256", "", nil)
	if err != nil {
		panic(err)
	}
	channelIDArgs = abi.Arguments{
		{Type: participantsTy},
		{Type: addressTy},
		{Type: uint256Ty},
		{Type: uint256Ty},
	}
}

// ID returns the channel id: keccak256 of the ABI encoding of the channel
// tuple. The id is a pure function of the tuple.
func (c *Channel) ID() (common.Hash, error) {
	challenge := c.Challenge
	if challenge == nil {
		challenge = new(big.Int)
	}
	nonce := c.Nonce
	if nonce == nil {
		nonce = new(big.Int)
	}
	packed, err := channelIDArgs.Pack(c.Participants, c.Adjudicator, challenge, nonce)
	if err != nil {
		return common.Hash{}, fmt.Errorf("encode channel tuple: %w", err)
	}
	return crypto.Keccak256Hash(packed), nil
}

// InitialState builds the version-0 state funding slot 0 with deposit. A nil
// deposit funds nothing.
func InitialState(deposit *big.Int) State {
	if deposit == nil {
		deposit = new(big.Int)
	}
	return State{
		Intent:  IntentInitialize,
		Version: 0,
		Data:    []byte{},
		Allocations: []Allocation{
			{Index: big.NewInt(0), Amount: new(big.Int).Set(deposit)},
			{Index: big.NewInt(1), Amount: new(big.Int)},
		},
	}
}
