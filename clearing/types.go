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
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"

	"github.com/clearmesh/walletcore/nitro"
	"github.com/clearmesh/walletcore/walleterr"
)

// RPC methods of the clearing node.
const (
	MethodPing                  = "ping"
	MethodAuthRequest           = "auth_request"
	MethodAuthVerify            = "auth_verify"
	MethodGetConfig             = "get_config"
	MethodGetAssets             = "get_assets"
	MethodGetAppDefinition      = "get_app_definition"
	MethodGetAppSessions        = "get_app_sessions"
	MethodGetChannels           = "get_channels"
	MethodGetLedgerBalances     = "get_ledger_balances"
	MethodGetLedgerTransactions = "get_ledger_transactions"
	MethodCreateChannel         = "create_channel"
	MethodResizeChannel         = "resize_channel"
	MethodCloseChannel          = "close_channel"
	MethodCreateAppSession      = "create_app_session"
	MethodSubmitAppState        = "submit_app_state"
	MethodCloseAppSession       = "close_app_session"
)

// DefaultProtocol is the app-session protocol version negotiated by default.
const DefaultProtocol = "NitroRPC/0.4"

// DefaultChallenge is the default challenge window in seconds.
const DefaultChallenge = 3600

// publicMethods may be called without a request signature.
var publicMethods = map[string]bool{
	MethodPing:             true,
	MethodGetConfig:        true,
	MethodGetAssets:        true,
	MethodGetAppDefinition: true,
}

// App-state intents carried by submit_app_state.
const (
	AppIntentDeposit = "deposit"
	AppIntentOperate = "operate"
)

// AppDefinition describes the fixed parameters of an app session.
type AppDefinition struct {
	Protocol     string   `json:"protocol"`
	Participants []string `json:"participants"`
	Weights      []int64  `json:"weights"`
	Quorum       int64    `json:"quorum"`
	Challenge    uint64   `json:"challenge"`
	Nonce        uint64   `json:"nonce"`
}

// AppAllocation assigns an asset amount to a participant.
type AppAllocation struct {
	Participant string          `json:"participant"`
	Asset       string          `json:"asset"`
	Amount      decimal.Decimal `json:"amount"`
}

// AppSessionInfo is the clearing node's view of a session, optionally merged
// with its definition.
type AppSessionInfo struct {
	AppSessionID string          `json:"app_session_id"`
	Status       string          `json:"status"`
	Version      uint64          `json:"version"`
	Protocol     string          `json:"protocol,omitempty"`
	Participants []string        `json:"participants,omitempty"`
	Weights      []int64         `json:"weights,omitempty"`
	Quorum       int64           `json:"quorum,omitempty"`
	SessionData  string          `json:"session_data,omitempty"`
	Allocations  []AppAllocation `json:"allocations,omitempty"`
}

// LedgerBalance is one per-asset balance row.
type LedgerBalance struct {
	Asset  string          `json:"asset"`
	Amount decimal.Decimal `json:"amount"`
}

// LedgerTransaction is one ledger movement recorded by the clearing node.
type LedgerTransaction struct {
	ID          uint64          `json:"id"`
	TxType      string          `json:"tx_type"`
	Asset       string          `json:"asset"`
	Amount      decimal.Decimal `json:"amount"`
	FromAccount string          `json:"from_account"`
	ToAccount   string          `json:"to_account"`
	Timestamp   uint64          `json:"timestamp"`
	Status      string          `json:"status"`
}

// ChannelInfo is the clearing node's view of a payment channel.
type ChannelInfo struct {
	ChannelID   string          `json:"channel_id"`
	Participant string          `json:"participant"`
	Status      string          `json:"status"`
	Token       string          `json:"token"`
	Amount      decimal.Decimal `json:"amount"`
	ChainID     uint64          `json:"chain_id"`
	Version     uint64          `json:"version"`
}

// PingResult is the reply to ping.
type PingResult struct {
	Pong      string `json:"pong"`
	Timestamp uint64 `json:"timestamp"`
}

// wireChannel is the channel tuple as sent by the clearing node.
type wireChannel struct {
	Participants []string `json:"participants"`
	Adjudicator  string   `json:"adjudicator"`
	Challenge    uint64   `json:"challenge"`
	Nonce        uint64   `json:"nonce"`
}

func (w wireChannel) toNitro() (nitro.Channel, error) {
	if len(w.Participants) != 2 {
		return nitro.Channel{}, walleterr.Wrap(walleterr.ErrInternal, "channel has %d participants, want 2", len(w.Participants))
	}
	return nitro.Channel{
		Participants: [2]common.Address{
			common.HexToAddress(w.Participants[0]),
			common.HexToAddress(w.Participants[1]),
		},
		Adjudicator: common.HexToAddress(w.Adjudicator),
		Challenge:   new(big.Int).SetUint64(w.Challenge),
		Nonce:       new(big.Int).SetUint64(w.Nonce),
	}, nil
}

// wireAllocation is one on-chain allocation row in string form.
type wireAllocation struct {
	Index  uint64 `json:"index"`
	Amount string `json:"amount"`
}

// wireState is an off-chain channel state as negotiated with the clearing
// node.
type wireState struct {
	Intent      uint8            `json:"intent"`
	Version     uint64           `json:"version"`
	StateData   string           `json:"state_data"`
	Allocations []wireAllocation `json:"allocations"`
}

func (w wireState) toNitro() (nitro.State, error) {
	data := []byte{}
	if w.StateData != "" && w.StateData != "0x" {
		decoded, err := hexutil.Decode(w.StateData)
		if err != nil {
			return nitro.State{}, walleterr.Wrap(walleterr.ErrInternal, "bad state data %q: %v", w.StateData, err)
		}
		data = decoded
	}
	allocs := make([]nitro.Allocation, len(w.Allocations))
	for i, a := range w.Allocations {
		amount, ok := new(big.Int).SetString(a.Amount, 10)
		if !ok {
			return nitro.State{}, walleterr.Wrap(walleterr.ErrInternal, "bad allocation amount %q", a.Amount)
		}
		allocs[i] = nitro.Allocation{
			Index:  new(big.Int).SetUint64(a.Index),
			Amount: amount,
		}
	}
	return nitro.State{
		Intent:      nitro.Intent(w.Intent),
		Version:     w.Version,
		Data:        data,
		Allocations: allocs,
	}, nil
}

// decodeSigs decodes the [user, server] signature pair in exactly that
// order.
func decodeSigs(userSig, serverSig string) ([][]byte, error) {
	user, err := hexutil.Decode(ensureHexPrefix(userSig))
	if err != nil {
		return nil, walleterr.Wrap(walleterr.ErrInternal, "bad user signature: %v", err)
	}
	server, err := hexutil.Decode(ensureHexPrefix(serverSig))
	if err != nil {
		return nil, walleterr.Wrap(walleterr.ErrInternal, "bad server signature: %v", err)
	}
	return [][]byte{user, server}, nil
}

func ensureHexPrefix(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s
	}
	return "0x" + s
}

// pageParams is the clearing node's pagination convention.
type pageParams struct {
	Page struct {
		Size int `json:"size"`
	} `json:"page"`
	Offset int `json:"offset"`
}
