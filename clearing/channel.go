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
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/clearmesh/walletcore/nitro"
	"github.com/clearmesh/walletcore/params"
	"github.com/clearmesh/walletcore/store"
	"github.com/clearmesh/walletcore/walleterr"
)

// Phase names a stage of the two-phase channel protocol.
type Phase string

const (
	PhaseOffChain Phase = "off-chain"
	PhaseOnChain  Phase = "on-chain"
)

// PartialError reports a channel operation that succeeded off-chain but
// failed afterwards. The negotiated state is stale; the caller may retry with
// a fresh negotiation.
type PartialError struct {
	Phase     Phase
	ChannelID common.Hash
	Err       error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("channel %s: %s phase failed: %v", e.ChannelID, e.Phase, e.Err)
}

func (e *PartialError) Unwrap() error { return e.Err }

// ChannelResult is the outcome of a channel operation.
type ChannelResult struct {
	ChannelID common.Hash
	Channel   nitro.Channel
	State     nitro.State
	ChainID   uint64
	Status    string
	TxHash    common.Hash
}

// ChannelService drives 2-party payment channels: off-chain negotiation with
// the clearing node followed by an on-chain custody call through the external
// submitter.
type ChannelService struct {
	c         *Client
	submitter nitro.Submitter
	channels  store.ChannelStore
	userID    string
	log       log.Logger
}

// NewChannelService creates a channel service for one user.
func NewChannelService(c *Client, submitter nitro.Submitter, channels store.ChannelStore, userID string) *ChannelService {
	return &ChannelService{
		c:         c,
		submitter: submitter,
		channels:  channels,
		userID:    userID,
		log:       log.New("pkg", "clearing", "user", userID),
	}
}

type createChannelParams struct {
	ChainID uint64 `json:"chain_id"`
	Token   string `json:"token"`
}

type resizeChannelParams struct {
	ChannelID string `json:"channel_id"`
	ChainID   uint64 `json:"chain_id"`
	// Signed, negative shrinks the channel.
	ResizeAmount string `json:"resize_amount"`
}

type closeChannelParams struct {
	ChannelID string `json:"channel_id"`
	ChainID   uint64 `json:"chain_id"`
	Funds     string `json:"funds_destination"`
}

type channelResponse struct {
	ChannelID       string       `json:"channel_id"`
	Channel         *wireChannel `json:"channel,omitempty"`
	State           wireState    `json:"state"`
	UserSignature   string       `json:"user_signature"`
	ServerSignature string       `json:"server_signature"`
}

// CreateChannel negotiates a new channel for (chainID, token) and anchors it
// on-chain. A nil initialDeposit opens an empty channel.
func (s *ChannelService) CreateChannel(ctx context.Context, chainID uint64, token common.Address, initialDeposit *big.Int) (*ChannelResult, error) {
	chain, custodyAddr, err := custodyFor(chainID)
	if err != nil {
		return nil, err
	}

	var resp channelResponse
	err = s.c.call(ctx, MethodCreateChannel, createChannelParams{
		ChainID: chainID,
		Token:   token.Hex(),
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Channel == nil {
		return nil, walleterr.Wrap(walleterr.ErrInternal, "create_channel reply lacks channel tuple")
	}
	channel, err := resp.Channel.toNitro()
	if err != nil {
		return nil, err
	}
	id, err := channel.ID()
	if err != nil {
		return nil, walleterr.Wrap(walleterr.ErrInternal, "channel id: %v", err)
	}
	if resp.ChannelID != "" && common.HexToHash(resp.ChannelID) != id {
		return nil, walleterr.Wrap(walleterr.ErrInternal, "channel id mismatch: computed %s, server sent %s", id, resp.ChannelID)
	}

	state := nitro.InitialState(initialDeposit)
	sigs, err := decodeSigs(resp.UserSignature, resp.ServerSignature)
	if err != nil {
		return nil, err
	}
	calldata, err := nitro.PackCreate(id, state, sigs)
	if err != nil {
		return nil, walleterr.Wrap(walleterr.ErrInternal, "pack create: %v", err)
	}

	txHash, err := s.submit(ctx, chainID, custodyAddr, calldata)
	if err != nil {
		return nil, &PartialError{Phase: PhaseOnChain, ChannelID: id, Err: err}
	}

	s.persist(ctx, store.Channel{
		UserID:    s.userID,
		ChainID:   chainID,
		ChannelID: id,
		Token:     token,
		Version:   state.Version,
		Status:    "active",
		UpdatedAt: time.Now(),
	})
	s.log.Info("Channel created", "channel", id, "chain", chain, "tx", txHash)
	return &ChannelResult{
		ChannelID: id,
		Channel:   channel,
		State:     state,
		ChainID:   chainID,
		Status:    "active",
		TxHash:    txHash,
	}, nil
}

// ResizeChannel grows or shrinks an existing channel by delta.
func (s *ChannelService) ResizeChannel(ctx context.Context, channelID common.Hash, chainID uint64, delta *big.Int) (*ChannelResult, error) {
	if delta == nil || delta.Sign() == 0 {
		return nil, walleterr.Wrap(walleterr.ErrInvalidArgument, "zero resize delta")
	}
	return s.mutate(ctx, channelID, chainID, MethodResizeChannel, resizeChannelParams{
		ChannelID:    channelID.Hex(),
		ChainID:      chainID,
		ResizeAmount: delta.String(),
	}, nitro.IntentResize, nitro.PackResize, "active")
}

// CloseChannel cooperatively finalizes a channel, paying out to destination.
func (s *ChannelService) CloseChannel(ctx context.Context, channelID common.Hash, chainID uint64, destination common.Address) (*ChannelResult, error) {
	return s.mutate(ctx, channelID, chainID, MethodCloseChannel, closeChannelParams{
		ChannelID: channelID.Hex(),
		ChainID:   chainID,
		Funds:     destination.Hex(),
	}, nitro.IntentFinalize, nitro.PackClose, "closed")
}

// mutate runs the shared resize/close flow: negotiate a successor state,
// validate it against the stored row and anchor it on-chain.
func (s *ChannelService) mutate(ctx context.Context, channelID common.Hash, chainID uint64, method string, reqParams interface{}, wantIntent nitro.Intent, pack func(common.Hash, nitro.State, [][]byte) ([]byte, error), finalStatus string) (*ChannelResult, error) {
	chain, custodyAddr, err := custodyFor(chainID)
	if err != nil {
		return nil, err
	}

	var resp channelResponse
	if err := s.c.call(ctx, method, reqParams, &resp); err != nil {
		return nil, err
	}
	state, err := resp.State.toNitro()
	if err != nil {
		return nil, err
	}
	if state.Intent != wantIntent {
		return nil, walleterr.Wrap(walleterr.ErrInternal, "%s returned intent %s, want %s", method, state.Intent, wantIntent)
	}

	row, err := s.channels.ChannelByID(ctx, channelID)
	switch {
	case err == nil:
		if state.Version <= row.Version {
			return nil, walleterr.Wrap(walleterr.ErrInternal, "channel %s version regressed: have %d, got %d", channelID, row.Version, state.Version)
		}
	case errors.Is(err, walleterr.ErrNotFound):
		row = store.Channel{UserID: s.userID, ChainID: chainID, ChannelID: channelID}
	default:
		return nil, err
	}

	sigs, err := decodeSigs(resp.UserSignature, resp.ServerSignature)
	if err != nil {
		return nil, err
	}
	calldata, err := pack(channelID, state, sigs)
	if err != nil {
		return nil, walleterr.Wrap(walleterr.ErrInternal, "pack %s: %v", method, err)
	}

	txHash, err := s.submit(ctx, chainID, custodyAddr, calldata)
	if err != nil {
		return nil, &PartialError{Phase: PhaseOnChain, ChannelID: channelID, Err: err}
	}

	row.Version = state.Version
	row.Status = finalStatus
	row.UpdatedAt = time.Now()
	s.persist(ctx, row)
	s.log.Info("Channel updated", "channel", channelID, "chain", chain, "intent", state.Intent, "version", state.Version, "tx", txHash)
	return &ChannelResult{
		ChannelID: channelID,
		State:     state,
		ChainID:   chainID,
		Status:    finalStatus,
		TxHash:    txHash,
	}, nil
}

// custodyFor resolves a clearing chain id to its registry chain and custody
// deployment. Both must exist before any phase runs.
func custodyFor(chainID uint64) (params.Chain, common.Address, error) {
	chain, ok := params.ChainByClearingID(chainID)
	if !ok {
		return "", common.Address{}, walleterr.Wrap(walleterr.ErrInvalidArgument, "unknown chain id %d", chainID)
	}
	addr, ok := params.CustodyContract(chainID)
	if !ok {
		return "", common.Address{}, walleterr.Wrap(walleterr.ErrInvalidArgument, "no custody contract for chain %d", chainID)
	}
	return chain, addr, nil
}

// submit sends the custody call and awaits a single confirmation.
func (s *ChannelService) submit(ctx context.Context, chainID uint64, to common.Address, calldata []byte) (common.Hash, error) {
	receipt, err := s.submitter.Submit(ctx, chainID, to, calldata)
	if err != nil {
		return common.Hash{}, walleterr.Wrap(walleterr.ErrUnavailable, "submit custody call: %v", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return common.Hash{}, walleterr.Wrap(walleterr.ErrInternal, "custody call reverted in tx %s", receipt.TxHash)
	}
	return receipt.TxHash, nil
}

// persist updates the local channel row. The off-chain and on-chain phases
// already completed, so a store failure only warns.
func (s *ChannelService) persist(ctx context.Context, row store.Channel) {
	if err := s.channels.PutChannel(ctx, row); err != nil {
		s.log.Warn("Channel row persist failed", "channel", row.ChannelID, "err", err)
	}
}
