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
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/clearmesh/walletcore/nitro"
	"github.com/clearmesh/walletcore/params"
	"github.com/clearmesh/walletcore/store"
	"github.com/clearmesh/walletcore/walleterr"
)

const (
	testChainID = uint64(8453)
	testUserID  = "user-1"
)

var (
	testToken   = common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	testUserSig = "0x" + strings.Repeat("aa", 65)
	testSrvSig  = "0x" + strings.Repeat("bb", 65)
	testChannel = nitro.Channel{
		Participants: [2]common.Address{
			testWallet,
			common.HexToAddress("0x0000000000000000000000000000000000b0b0b0"),
		},
		Adjudicator: common.HexToAddress("0x0000000000000000000000000000000000adad00"),
		Challenge:   big.NewInt(3600),
		Nonce:       big.NewInt(7),
	}
)

type submittedCall struct {
	ChainID  uint64
	To       common.Address
	Calldata []byte
}

type fakeSubmitter struct {
	mu     sync.Mutex
	calls  []submittedCall
	status uint64
	err    error
}

func newFakeSubmitter() *fakeSubmitter {
	return &fakeSubmitter{status: types.ReceiptStatusSuccessful}
}

func (f *fakeSubmitter) Submit(ctx context.Context, chainID uint64, to common.Address, calldata []byte) (*types.Receipt, error) {
	f.mu.Lock()
	f.calls = append(f.calls, submittedCall{ChainID: chainID, To: to, Calldata: calldata})
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &types.Receipt{Status: f.status, TxHash: common.HexToHash("0xfeedc0de")}, nil
}

func (f *fakeSubmitter) submitted() []submittedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]submittedCall(nil), f.calls...)
}

// channelJSON renders the test channel tuple plus the signature pair,
// optionally overriding the echoed channel id.
func channelJSON(t *testing.T, echoID string) string {
	id, err := testChannel.ID()
	require.NoError(t, err)
	if echoID == "" {
		echoID = id.Hex()
	}
	return fmt.Sprintf(`{
		"channel_id": %q,
		"channel": {
			"participants": [%q, %q],
			"adjudicator": %q,
			"challenge": 3600,
			"nonce": 7
		},
		"user_signature": %q,
		"server_signature": %q
	}`, echoID, testChannel.Participants[0].Hex(), testChannel.Participants[1].Hex(),
		testChannel.Adjudicator.Hex(), testUserSig, testSrvSig)
}

func stateJSON(intent nitro.Intent, version uint64, amounts ...string) string {
	allocs := make([]string, len(amounts))
	for i, a := range amounts {
		allocs[i] = fmt.Sprintf(`{"index":%d,"amount":%q}`, i, a)
	}
	return fmt.Sprintf(`{
		"state": {"intent":%d,"version":%d,"state_data":"0x","allocations":[%s]},
		"user_signature": %q,
		"server_signature": %q
	}`, uint8(intent), version, strings.Join(allocs, ","), testUserSig, testSrvSig)
}

func TestCreateChannel(t *testing.T) {
	e := newEnv(t, func(n *fakeClearingNode) {
		n.stub(MethodCreateChannel, channelJSON(t, ""))
	})
	sub := newFakeSubmitter()
	svc := NewChannelService(e.client, sub, e.db, testUserID)

	deposit := big.NewInt(10_000_000)
	result, err := svc.CreateChannel(context.Background(), testChainID, testToken, deposit)
	require.NoError(t, err)

	wantID, err := testChannel.ID()
	require.NoError(t, err)
	require.Equal(t, wantID, result.ChannelID)
	require.Equal(t, "active", result.Status)
	require.Equal(t, nitro.IntentInitialize, result.State.Intent)
	require.EqualValues(t, 0, result.State.Version)
	require.Len(t, result.State.Allocations, 2)
	require.Zero(t, result.State.Allocations[0].Amount.Cmp(deposit))
	require.Zero(t, result.State.Allocations[1].Amount.Sign())

	submitted := sub.submitted()
	require.Len(t, submitted, 1)
	require.Equal(t, testChainID, submitted[0].ChainID)
	custodyAddr, _ := params.CustodyContract(testChainID)
	require.Equal(t, custodyAddr, submitted[0].To)

	sigs, err := decodeSigs(testUserSig, testSrvSig)
	require.NoError(t, err)
	wantCalldata, err := nitro.PackCreate(wantID, nitro.InitialState(deposit), sigs)
	require.NoError(t, err)
	require.Equal(t, wantCalldata, submitted[0].Calldata)

	row, err := e.db.ChannelByID(context.Background(), wantID)
	require.NoError(t, err)
	require.Equal(t, testUserID, row.UserID)
	require.Equal(t, "active", row.Status)
	require.EqualValues(t, 0, row.Version)
}

func TestCreateChannelIDMismatch(t *testing.T) {
	e := newEnv(t, func(n *fakeClearingNode) {
		n.stub(MethodCreateChannel, channelJSON(t, common.HexToHash("0xbad").Hex()))
	})
	sub := newFakeSubmitter()
	svc := NewChannelService(e.client, sub, e.db, testUserID)

	_, err := svc.CreateChannel(context.Background(), testChainID, testToken, big.NewInt(1))
	require.ErrorIs(t, err, walleterr.ErrInternal)
	require.Contains(t, err.Error(), "mismatch")
	require.Empty(t, sub.submitted())
}

func TestCreateChannelUnknownChain(t *testing.T) {
	e := newEnv(t, nil)
	sub := newFakeSubmitter()
	svc := NewChannelService(e.client, sub, e.db, testUserID)

	_, err := svc.CreateChannel(context.Background(), 999, testToken, nil)
	require.ErrorIs(t, err, walleterr.ErrInvalidArgument)
	require.Empty(t, e.node.calls(MethodCreateChannel))
}

func seedChannelRow(t *testing.T, db *store.Memory, version uint64) common.Hash {
	id, err := testChannel.ID()
	require.NoError(t, err)
	require.NoError(t, db.PutChannel(context.Background(), store.Channel{
		UserID:    testUserID,
		ChainID:   testChainID,
		ChannelID: id,
		Token:     testToken,
		Version:   version,
		Status:    "active",
		UpdatedAt: time.Now(),
	}))
	return id
}

func TestResizeChannel(t *testing.T) {
	e := newEnv(t, func(n *fakeClearingNode) {
		n.stub(MethodResizeChannel, stateJSON(nitro.IntentResize, 1, "15000000", "0"))
	})
	sub := newFakeSubmitter()
	svc := NewChannelService(e.client, sub, e.db, testUserID)
	id := seedChannelRow(t, e.db, 0)

	result, err := svc.ResizeChannel(context.Background(), id, testChainID, big.NewInt(5_000_000))
	require.NoError(t, err)
	require.Equal(t, nitro.IntentResize, result.State.Intent)
	require.EqualValues(t, 1, result.State.Version)
	require.Len(t, sub.submitted(), 1)

	var sent resizeChannelParams
	require.NoError(t, json.Unmarshal(e.node.calls(MethodResizeChannel)[0].Req.Params, &sent))
	require.Equal(t, "5000000", sent.ResizeAmount)

	row, err := e.db.ChannelByID(context.Background(), id)
	require.NoError(t, err)
	require.EqualValues(t, 1, row.Version)
	require.Equal(t, "active", row.Status)
}

func TestResizeChannelVersionRegression(t *testing.T) {
	e := newEnv(t, func(n *fakeClearingNode) {
		n.stub(MethodResizeChannel, stateJSON(nitro.IntentResize, 3, "1", "0"))
	})
	sub := newFakeSubmitter()
	svc := NewChannelService(e.client, sub, e.db, testUserID)
	id := seedChannelRow(t, e.db, 3)

	_, err := svc.ResizeChannel(context.Background(), id, testChainID, big.NewInt(1))
	require.ErrorIs(t, err, walleterr.ErrInternal)
	require.Contains(t, err.Error(), "version")
	require.Empty(t, sub.submitted())
}

func TestResizeChannelZeroDelta(t *testing.T) {
	e := newEnv(t, nil)
	svc := NewChannelService(e.client, newFakeSubmitter(), e.db, testUserID)
	_, err := svc.ResizeChannel(context.Background(), common.HexToHash("0x1"), testChainID, nil)
	require.ErrorIs(t, err, walleterr.ErrInvalidArgument)
}

func TestCloseChannel(t *testing.T) {
	e := newEnv(t, func(n *fakeClearingNode) {
		n.stub(MethodCloseChannel, stateJSON(nitro.IntentFinalize, 2, "12000000", "3000000"))
	})
	sub := newFakeSubmitter()
	svc := NewChannelService(e.client, sub, e.db, testUserID)
	id := seedChannelRow(t, e.db, 1)

	result, err := svc.CloseChannel(context.Background(), id, testChainID, testWallet)
	require.NoError(t, err)
	require.Equal(t, "closed", result.Status)
	require.Equal(t, nitro.IntentFinalize, result.State.Intent)

	state := result.State
	sigs, err := decodeSigs(testUserSig, testSrvSig)
	require.NoError(t, err)
	wantCalldata, err := nitro.PackClose(id, state, sigs)
	require.NoError(t, err)
	require.Equal(t, wantCalldata, sub.submitted()[0].Calldata)

	row, err := e.db.ChannelByID(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "closed", row.Status)
	require.EqualValues(t, 2, row.Version)
}

func TestCloseChannelPartialOnRevert(t *testing.T) {
	e := newEnv(t, func(n *fakeClearingNode) {
		n.stub(MethodCloseChannel, stateJSON(nitro.IntentFinalize, 2, "1", "0"))
	})
	sub := newFakeSubmitter()
	sub.status = types.ReceiptStatusFailed
	svc := NewChannelService(e.client, sub, e.db, testUserID)
	id := seedChannelRow(t, e.db, 1)

	_, err := svc.CloseChannel(context.Background(), id, testChainID, testWallet)
	var partial *PartialError
	require.ErrorAs(t, err, &partial)
	require.Equal(t, PhaseOnChain, partial.Phase)
	require.Equal(t, id, partial.ChannelID)

	// Row stays at the pre-close version; the negotiated state is stale.
	row, err := e.db.ChannelByID(context.Background(), id)
	require.NoError(t, err)
	require.EqualValues(t, 1, row.Version)
	require.Equal(t, "active", row.Status)
}

func TestCloseChannelSubmitterUnavailable(t *testing.T) {
	e := newEnv(t, func(n *fakeClearingNode) {
		n.stub(MethodCloseChannel, stateJSON(nitro.IntentFinalize, 2, "1", "0"))
	})
	sub := newFakeSubmitter()
	sub.err = errors.New("rpc node down")
	svc := NewChannelService(e.client, sub, e.db, testUserID)
	id := seedChannelRow(t, e.db, 1)

	_, err := svc.CloseChannel(context.Background(), id, testChainID, testWallet)
	var partial *PartialError
	require.ErrorAs(t, err, &partial)
	require.ErrorIs(t, err, walleterr.ErrUnavailable)
}

func TestChannelIDPureFunction(t *testing.T) {
	a := testChannel
	b := testChannel
	idA, err := a.ID()
	require.NoError(t, err)
	idB, err := b.ID()
	require.NoError(t, err)
	require.Equal(t, idA, idB)

	b.Nonce = big.NewInt(8)
	idC, err := b.ID()
	require.NoError(t, err)
	require.NotEqual(t, idA, idC)
}

func TestWrongIntentRejected(t *testing.T) {
	e := newEnv(t, func(n *fakeClearingNode) {
		n.stub(MethodCloseChannel, stateJSON(nitro.IntentOperate, 2, "1", "0"))
	})
	sub := newFakeSubmitter()
	svc := NewChannelService(e.client, sub, e.db, testUserID)
	id := seedChannelRow(t, e.db, 1)

	_, err := svc.CloseChannel(context.Background(), id, testChainID, testWallet)
	require.ErrorIs(t, err, walleterr.ErrInternal)
	require.Contains(t, err.Error(), "intent")
	require.Empty(t, sub.submitted())
}
