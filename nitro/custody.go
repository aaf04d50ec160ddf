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

package nitro

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// custodyABI covers the subset of the custody contract driven by the channel
// controller.
const custodyABI = `[
  {"type":"function","name":"create","inputs":[
    {"name":"channelId","type":"bytes32"},
    {"name":"state","type":"tuple","components":[
      {"name":"intent","type":"uint8"},
      {"name":"version","type":"uint64"},
      {"name":"data","type":"bytes"},
      {"name":"allocations","type":"tuple[]","components":[
        {"name":"index","type":"uint256"},
        {"name":"amount","type":"uint256"}]}]},
    {"name":"sigs","type":"bytes[]"}],"outputs":[]},
  {"type":"function","name":"resize","inputs":[
    {"name":"channelId","type":"bytes32"},
    {"name":"state","type":"tuple","components":[
      {"name":"intent","type":"uint8"},
      {"name":"version","type":"uint64"},
      {"name":"data","type":"bytes"},
      {"name":"allocations","type":"tuple[]","components":[
        {"name":"index","type":"uint256"},
        {"name":"amount","type":"uint256"}]}]},
    {"name":"sigs","type":"bytes[]"}],"outputs":[]},
  {"type":"function","name":"close","inputs":[
    {"name":"channelId","type":"bytes32"},
    {"name":"state","type":"tuple","components":[
      {"name":"intent","type":"uint8"},
      {"name":"version","type":"uint64"},
      {"name":"data","type":"bytes"},
      {"name":"allocations","type":"tuple[]","components":[
        {"name":"index","type":"uint256"},
        {"name":"amount","type":"uint256"}]}]},
    {"name":"sigs","type":"bytes[]"}],"outputs":[]}
]`

var custody abi.ABI

func init() {
	var err error
	custody, err = abi.JSON(strings.NewReader(custodyABI))
	if err != nil {
		panic(err)
	}
}

// abiState mirrors the State tuple of the custody ABI.
type abiState struct {
	Intent      uint8
	Version     uint64
	Data        []byte
	Allocations []abiAllocation
}

type abiAllocation struct {
	Index  *big.Int
	Amount *big.Int
}

// Submitter sends a prepared custody call on-chain and waits for exactly one
// confirmation. Implementations live outside the core.
type Submitter interface {
	Submit(ctx context.Context, chainID uint64, to common.Address, calldata []byte) (*types.Receipt, error)
}

func toABIState(s State) abiState {
	allocs := make([]abiAllocation, len(s.Allocations))
	for i, a := range s.Allocations {
		allocs[i] = abiAllocation{Index: a.Index, Amount: a.Amount}
	}
	data := s.Data
	if data == nil {
		data = []byte{}
	}
	return abiState{
		Intent:      uint8(s.Intent),
		Version:     s.Version,
		Data:        data,
		Allocations: allocs,
	}
}

func pack(method string, channelID common.Hash, state State, sigs [][]byte) ([]byte, error) {
	calldata, err := custody.Pack(method, channelID, toABIState(state), sigs)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	return calldata, nil
}

// PackCreate encodes create(channelId, state, sigs).
func PackCreate(channelID common.Hash, state State, sigs [][]byte) ([]byte, error) {
	return pack("create", channelID, state, sigs)
}

// PackResize encodes resize(channelId, state, sigs).
func PackResize(channelID common.Hash, state State, sigs [][]byte) ([]byte, error) {
	return pack("resize", channelID, state, sigs)
}

// PackClose encodes close(channelId, state, sigs).
func PackClose(channelID common.Hash, state State, sigs [][]byte) ([]byte, error) {
	return pack("close", channelID, state, sigs)
}
