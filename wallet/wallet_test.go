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
	"bytes"
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/clearmesh/walletcore/indexer"
	"github.com/clearmesh/walletcore/params"
	"github.com/clearmesh/walletcore/signer"
	"github.com/clearmesh/walletcore/store"
)

const testUser = "user-1"

// fakeAccount is the minimal signer account: an address, a native balance
// and a set of recording transfer paths.
type fakeAccount struct {
	addr    string
	balance *big.Int

	mu    sync.Mutex
	sent  []signer.TransferRequest
	kinds []signer.TransferKind
}

func newFakeAccount(addr string, balance int64, kinds ...signer.TransferKind) *fakeAccount {
	return &fakeAccount{addr: addr, balance: big.NewInt(balance), kinds: kinds}
}

func (a *fakeAccount) Address() string { return a.addr }

func (a *fakeAccount) Balance(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(a.balance), nil
}

func (a *fakeAccount) TransferPaths() []signer.TransferPath {
	paths := make([]signer.TransferPath, len(a.kinds))
	for i, kind := range a.kinds {
		kind := kind
		paths[i] = signer.TransferPath{
			Kind: kind,
			Send: func(ctx context.Context, req signer.TransferRequest) (string, error) {
				a.mu.Lock()
				a.sent = append(a.sent, req)
				a.mu.Unlock()
				return "0xdeadbeef", nil
			},
		}
	}
	return paths
}

func (a *fakeAccount) transfers() []signer.TransferRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]signer.TransferRequest(nil), a.sent...)
}

// tokenAccount additionally reports token balances directly.
type tokenAccount struct {
	*fakeAccount
	tokens map[string]*big.Int
}

func (a *tokenAccount) TokenBalance(ctx context.Context, token string) (*big.Int, error) {
	if bal, ok := a.tokens[token]; ok {
		return new(big.Int).Set(bal), nil
	}
	return new(big.Int), nil
}

// callerAccount additionally exposes an eth_call style read, keyed by the
// calldata's 4-byte selector.
type callerAccount struct {
	*fakeAccount
	calls map[string][]byte // selector hex → return data
}

func (a *callerAccount) CallContract(ctx context.Context, to string, data []byte) ([]byte, error) {
	if len(data) >= 4 {
		if out, ok := a.calls[string(data[:4])]; ok {
			return out, nil
		}
	}
	return nil, nil
}

var (
	selDecimals  = string([]byte{0x31, 0x3c, 0xe5, 0x67})
	selBalanceOf = string([]byte{0x70, 0xa0, 0x82, 0x31})
)

// word encodes v as a 32-byte big-endian ABI word.
func word(v int64) []byte {
	return append(bytes.Repeat([]byte{0}, 24), big.NewInt(v).FillBytes(make([]byte, 8))...)
}

// fakeDeriver hands out canned accounts, with optional per-chain errors and
// latencies.
type fakeDeriver struct {
	mu       sync.Mutex
	accounts map[params.Chain]signer.Account
	errs     map[params.Chain]error
	delays   map[params.Chain]time.Duration
	derives  int
}

func newFakeDeriver() *fakeDeriver {
	return &fakeDeriver{
		accounts: make(map[params.Chain]signer.Account),
		errs:     make(map[params.Chain]error),
		delays:   make(map[params.Chain]time.Duration),
	}
}

func (d *fakeDeriver) Derive(ctx context.Context, seed []byte, chain params.Chain, index uint32) (signer.Account, error) {
	d.mu.Lock()
	d.derives++
	delay := d.delays[chain]
	err := d.errs[chain]
	acct := d.accounts[chain]
	d.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if acct == nil {
		acct = newFakeAccount(string(chain)+"-addr", 0, signer.NativeSend)
	}
	return acct, nil
}

func (d *fakeDeriver) deriveCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.derives
}

// newTestService wires a Service against an httptest indexer.
func newTestService(t *testing.T, deriver *fakeDeriver, handler http.HandlerFunc, mutate func(*Config)) *Service {
	t.Helper()
	if handler == nil {
		handler = func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"data":[]}`))
		}
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := Config{
		Seeds:   store.NewMemory(),
		Deriver: deriver,
		Indexer: indexer.NewClient(indexer.Config{
			BaseURL:     srv.URL,
			APIKey:      "test-key",
			Timeout:     time.Second,
			MaxAttempts: 1,
		}),
		Chains: []params.Chain{params.Ethereum, params.Base, params.Solana},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewService(cfg)
}
