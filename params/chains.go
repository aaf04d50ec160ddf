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

// Package params holds the static chain registry shared by all wallet
// subsystems: the supported chains, their derivation families, native token
// decimals and the custody contract deployments.
package params

import "github.com/ethereum/go-ethereum/common"

// Chain identifies one supported network. Account-abstraction variants are
// distinct chains for derivation purposes: they share the EVM family but
// derive a smart-account address instead of an EOA.
type Chain string

const (
	Ethereum   Chain = "ethereum"
	Base       Chain = "base"
	Arbitrum   Chain = "arbitrum"
	Polygon    Chain = "polygon"
	EthereumAA Chain = "ethereum-aa"
	BaseAA     Chain = "base-aa"
	ArbitrumAA Chain = "arbitrum-aa"
	PolygonAA  Chain = "polygon-aa"
	Tron       Chain = "tron"
	Bitcoin    Chain = "bitcoin"
	Solana     Chain = "solana"
)

// Family groups chains by derivation scheme.
type Family string

const (
	FamilyEVM     Family = "evm"
	FamilyEVMAA   Family = "evm-aa"
	FamilyTron    Family = "tron"
	FamilyBitcoin Family = "bitcoin"
	FamilySolana  Family = "solana"
)

// AllChains lists every supported chain. Stream consumers receive exactly one
// result per entry.
var AllChains = []Chain{
	Ethereum, Base, Arbitrum, Polygon,
	EthereumAA, BaseAA, ArbitrumAA, PolygonAA,
	Tron, Bitcoin, Solana,
}

var chainFamilies = map[Chain]Family{
	Ethereum:   FamilyEVM,
	Base:       FamilyEVM,
	Arbitrum:   FamilyEVM,
	Polygon:    FamilyEVM,
	EthereumAA: FamilyEVMAA,
	BaseAA:     FamilyEVMAA,
	ArbitrumAA: FamilyEVMAA,
	PolygonAA:  FamilyEVMAA,
	Tron:       FamilyTron,
	Bitcoin:    FamilyBitcoin,
	Solana:     FamilySolana,
}

// nativeDecimals is the decimal count of each chain's native token.
var nativeDecimals = map[Chain]int{
	Ethereum:   18,
	Base:       18,
	Arbitrum:   18,
	Polygon:    18,
	EthereumAA: 18,
	BaseAA:     18,
	ArbitrumAA: 18,
	PolygonAA:  18,
	Tron:       6,
	Bitcoin:    8,
	Solana:     9,
}

// nativeSymbols maps chains to their gas token ticker.
var nativeSymbols = map[Chain]string{
	Ethereum:   "ETH",
	Base:       "ETH",
	Arbitrum:   "ETH",
	Polygon:    "MATIC",
	EthereumAA: "ETH",
	BaseAA:     "ETH",
	ArbitrumAA: "ETH",
	PolygonAA:  "MATIC",
	Tron:       "TRX",
	Bitcoin:    "BTC",
	Solana:     "SOL",
}

// clearingChainIDs maps EVM chains onto the numeric ids used by the clearing
// node and the indexer.
var clearingChainIDs = map[Chain]uint64{
	Ethereum:   1,
	Base:       8453,
	Arbitrum:   42161,
	Polygon:    137,
	EthereumAA: 1,
	BaseAA:     8453,
	ArbitrumAA: 42161,
	PolygonAA:  137,
}

// custodyContracts holds the custody deployment per clearing chain id.
var custodyContracts = map[uint64]common.Address{
	1:     common.HexToAddress("0x6E4b79a2f0b7c2fdb7EBE0a7cAba6A1a5bD89e1C"),
	8453:  common.HexToAddress("0x490f4f9d9d2d871149c92e819c00bE4D0c323E0B"),
	42161: common.HexToAddress("0x7e39A3fC0d6eDc1F937CD2C3d33F4f1f31fAb6b5"),
	137:   common.HexToAddress("0x33a3bBFE2eD4c1b3b8C10e3f52a2dBc2acdF5e47"),
}

// ChainFamily returns the derivation family of chain. The boolean is false
// for unsupported chains.
func ChainFamily(chain Chain) (Family, bool) {
	f, ok := chainFamilies[chain]
	return f, ok
}

// IsSupported reports whether chain is in the registry.
func IsSupported(chain Chain) bool {
	_, ok := chainFamilies[chain]
	return ok
}

// NativeDecimals returns the native token decimals for chain, defaulting to
// 18 for unknown chains.
func NativeDecimals(chain Chain) int {
	if d, ok := nativeDecimals[chain]; ok {
		return d
	}
	return 18
}

// NativeSymbol returns the gas token ticker for chain.
func NativeSymbol(chain Chain) string {
	return nativeSymbols[chain]
}

// ClearingChainID returns the numeric chain id understood by the clearing
// node and indexer. Non-EVM chains have no clearing id.
func ClearingChainID(chain Chain) (uint64, bool) {
	id, ok := clearingChainIDs[chain]
	return id, ok
}

// ChainByClearingID is the reverse of ClearingChainID for EOA chains.
func ChainByClearingID(id uint64) (Chain, bool) {
	switch id {
	case 1:
		return Ethereum, true
	case 8453:
		return Base, true
	case 42161:
		return Arbitrum, true
	case 137:
		return Polygon, true
	}
	return "", false
}

// CustodyContract returns the custody deployment for the given clearing
// chain id.
func CustodyContract(chainID uint64) (common.Address, bool) {
	addr, ok := custodyContracts[chainID]
	return addr, ok
}
