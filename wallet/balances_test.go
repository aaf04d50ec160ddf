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
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clearmesh/walletcore/params"
	"github.com/clearmesh/walletcore/signer"
)

const basePortfolio = `{"data":[
	{"type":"positions","id":"native","attributes":{
		"quantity":{"int":"2000000000000000000","decimals":18},
		"fungible_info":{"symbol":"ETH","implementations":[{"chain_id":"base","address":"","decimals":18}]},
		"flags":{"displayable":true}},
		"relationships":{"chain":{"data":{"id":"base"}}}},
	{"type":"positions","id":"usdc","attributes":{
		"quantity":{"int":"1500000","decimals":6},
		"fungible_info":{"symbol":"USDC","implementations":[{"chain_id":"base","address":"0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48","decimals":6}]},
		"flags":{"displayable":true}},
		"relationships":{"chain":{"data":{"id":"base"}}}},
	{"type":"positions","id":"dust","attributes":{
		"quantity":{"int":"0","decimals":8},
		"fungible_info":{"symbol":"DUST","implementations":[{"chain_id":"base","address":"0xdust","decimals":8}]},
		"flags":{"displayable":true}},
		"relationships":{"chain":{"data":{"id":"base"}}}}
]}`

func TestTokenBalancesNormalization(t *testing.T) {
	svc := newTestService(t, newFakeDeriver(), func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(basePortfolio))
	}, nil)

	tokens, err := svc.TokenBalances(context.Background(), testUser, params.Base)
	require.NoError(t, err)
	require.Len(t, tokens, 2) // zero DUST omitted

	bySymbol := map[string]TokenBalance{}
	for _, tb := range tokens {
		bySymbol[tb.Symbol] = tb
	}
	native := bySymbol["ETH"]
	require.Nil(t, native.Address)
	require.Equal(t, "2000000000000000000", native.Balance)

	usdc := bySymbol["USDC"]
	require.NotNil(t, usdc.Address)
	require.Equal(t, "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", *usdc.Address)
	require.Equal(t, "1500000000000000000", usdc.Balance) // right-padded to 18
	require.Equal(t, 6, usdc.Decimals)
}

func TestNativeBalanceFromIndexer(t *testing.T) {
	svc := newTestService(t, newFakeDeriver(), func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(basePortfolio))
	}, nil)

	balances, err := svc.Balances(context.Background(), testUser)
	require.NoError(t, err)
	require.Equal(t, "2000000000000000000", balances[params.Base].Balance)
	require.Equal(t, "ETH", balances[params.Base].Symbol)
	require.Equal(t, "SOL", balances[params.Solana].Symbol)
}

func TestNativeBalanceFallsBackToSigner(t *testing.T) {
	deriver := newFakeDeriver()
	deriver.accounts[params.Base] = newFakeAccount("0xeoa", 3_000_000, signer.NativeSend)
	svc := newTestService(t, deriver, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}, func(cfg *Config) {
		cfg.Chains = []params.Chain{params.Base}
	})

	res := svc.nativeBalance(context.Background(), testUser, params.Base)
	require.NoError(t, res.Err)
	require.Equal(t, "3000000", res.Balance)

	// Token discovery degrades to empty without surfacing the error.
	tokens, err := svc.TokenBalances(context.Background(), testUser, params.Base)
	require.NoError(t, err)
	require.Empty(t, tokens)
}

func TestEmptyIndexerDataYieldsZero(t *testing.T) {
	svc := newTestService(t, newFakeDeriver(), func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}, nil)

	res := svc.nativeBalance(context.Background(), testUser, params.Base)
	require.NoError(t, res.Err)
	require.Equal(t, "0", res.Balance)

	tokens, err := svc.TokenBalances(context.Background(), testUser, params.Base)
	require.NoError(t, err)
	require.Empty(t, tokens)
}

func TestNormalize18(t *testing.T) {
	require.Equal(t, "1500000000000000000", normalize18("1500000", 6))
	require.Equal(t, "42", normalize18("42", 18))
	require.Equal(t, "12", normalize18("1234", 20))
	require.Equal(t, "0", normalize18("12", 20))
	require.Equal(t, "0", normalize18("000", 6))
	require.Equal(t, "0", normalize18("", 6))
}
