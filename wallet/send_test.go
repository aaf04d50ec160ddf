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
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clearmesh/walletcore/params"
	"github.com/clearmesh/walletcore/signer"
	"github.com/clearmesh/walletcore/walleterr"
)

const usdcAddr = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"

func TestSendNativePath(t *testing.T) {
	acct := newFakeAccount("0xeoa", 2_000_000_000_000_000_000, signer.NativeSend, signer.GenericSend)
	deriver := newFakeDeriver()
	deriver.accounts[params.Ethereum] = acct
	svc := newTestService(t, deriver, nil, nil)

	res, err := svc.SendCrypto(context.Background(), SendRequest{
		UserID: testUser,
		Chain:  params.Ethereum,
		To:     "0xrecipient",
		Amount: "0.5",
	})
	require.NoError(t, err)
	require.Equal(t, "0xdeadbeef", res.TxHash)
	require.Equal(t, signer.NativeSend, res.Kind)
	require.Equal(t, 18, res.Decimals)
	require.Equal(t, "500000000000000000", res.AmountSmallest.String())

	sent := acct.transfers()
	require.Len(t, sent, 1)
	require.Equal(t, "0xrecipient", sent[0].To)
	require.Empty(t, sent[0].Token)
	require.Equal(t, 0, sent[0].Amount.Cmp(res.AmountSmallest))
}

func TestSendNativeInsufficientBalance(t *testing.T) {
	deriver := newFakeDeriver()
	deriver.accounts[params.Ethereum] = newFakeAccount("0xeoa", 1000, signer.NativeSend)
	svc := newTestService(t, deriver, nil, nil)

	_, err := svc.SendCrypto(context.Background(), SendRequest{
		UserID: testUser,
		Chain:  params.Ethereum,
		To:     "0xrecipient",
		Amount: "1",
	})
	require.ErrorIs(t, err, walleterr.ErrPrecondition)
	require.Contains(t, err.Error(), "availableSmallest=1000")
	require.Contains(t, err.Error(), "requestedSmallest=1000000000000000000")
	require.Contains(t, err.Error(), "source=wdk-getBalance")
}

// The token's contract does not answer decimals(), so resolution falls back
// to the indexer's metadata; the balance precheck reads balanceOf through the
// account's provider.
func TestSendDecimalsFallback(t *testing.T) {
	acct := &callerAccount{
		fakeAccount: newFakeAccount("0xeoa", 0, signer.NativeSend, signer.GenericSend),
		calls: map[string][]byte{
			selBalanceOf: word(2_000_000),
		},
	}
	deriver := newFakeDeriver()
	deriver.accounts[params.Base] = acct

	var hits int
	svc := newTestService(t, deriver, func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(basePortfolio))
	}, nil)

	res, err := svc.SendCrypto(context.Background(), SendRequest{
		UserID: testUser,
		Chain:  params.Base,
		To:     "0xrecipient",
		Amount: "1.5",
		Token:  usdcAddr,
	})
	require.NoError(t, err)
	require.Equal(t, 6, res.Decimals)
	require.Equal(t, "1500000", res.AmountSmallest.String())
	require.Equal(t, signer.GenericSend, res.Kind)
	require.Equal(t, 1, hits) // decimals resolution only

	sent := acct.transfers()
	require.Len(t, sent, 1)
	require.Equal(t, usdcAddr, sent[0].Token)

	// The send invalidated the chain's position cache.
	_, err = svc.TokenBalances(context.Background(), testUser, params.Base)
	require.NoError(t, err)
	require.Equal(t, 2, hits)
}

func TestSendInsufficientTokenBalance(t *testing.T) {
	acct := &tokenAccount{
		fakeAccount: newFakeAccount("0xeoa", 0, signer.NativeSend, signer.GenericSend),
		tokens:      map[string]*big.Int{usdcAddr: big.NewInt(50_000_000)},
	}
	deriver := newFakeDeriver()
	deriver.accounts[params.Base] = acct
	svc := newTestService(t, deriver, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(basePortfolio))
	}, nil)

	_, err := svc.SendCrypto(context.Background(), SendRequest{
		UserID: testUser,
		Chain:  params.Base,
		To:     "0xrecipient",
		Amount: "1000",
		Token:  usdcAddr,
	})
	require.ErrorIs(t, err, walleterr.ErrPrecondition)
	require.Contains(t, err.Error(), "availableSmallest=50000000")
	require.Contains(t, err.Error(), "requestedSmallest=1000000000")
	require.Contains(t, err.Error(), "source=wdk-getTokenBalance")
	require.Empty(t, acct.transfers())
}

func TestSendRejectsBadInput(t *testing.T) {
	deriver := newFakeDeriver()
	svc := newTestService(t, deriver, nil, nil)

	_, err := svc.SendCrypto(context.Background(), SendRequest{
		UserID: testUser, Chain: params.Ethereum, To: " ", Amount: "1",
	})
	require.ErrorIs(t, err, walleterr.ErrInvalidArgument)

	_, err = svc.SendCrypto(context.Background(), SendRequest{
		UserID: testUser, Chain: params.Ethereum, To: "0xrecipient", Amount: "0",
	})
	require.ErrorIs(t, err, walleterr.ErrInvalidArgument)
}

func TestSendNoTokenPath(t *testing.T) {
	acct := newFakeAccount("0xeoa", 1_000_000, signer.NativeSend)
	deriver := newFakeDeriver()
	deriver.accounts[params.Base] = acct
	svc := newTestService(t, deriver, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(basePortfolio))
	}, nil)

	_, err := svc.SendCrypto(context.Background(), SendRequest{
		UserID: testUser,
		Chain:  params.Base,
		To:     "0xrecipient",
		Amount: "1",
		Token:  usdcAddr,
	})
	require.ErrorIs(t, err, walleterr.ErrInvalidArgument)
	require.Empty(t, acct.transfers())
}

func TestTokenPathPriority(t *testing.T) {
	acct := newFakeAccount("0xeoa", 0, signer.NativeSend, signer.GenericSend, signer.TokenTransferTriple)

	path, err := transferPath(acct, true)
	require.NoError(t, err)
	require.Equal(t, signer.TokenTransferTriple, path.Kind)

	path, err = transferPath(acct, false)
	require.NoError(t, err)
	require.Equal(t, signer.NativeSend, path.Kind)
}
