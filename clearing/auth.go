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
	"crypto/ecdsa"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"

	"github.com/clearmesh/walletcore/walleterr"
	"github.com/clearmesh/walletcore/wsrpc"
)

// Session holds the ephemeral session key used to authenticate with the
// clearing node and to sign individual requests. The key is generated once
// per process; the handshake is repeated on every (re)connect through the
// transport's on-connect hook.
type Session struct {
	key         *ecdsa.PrivateKey
	sessionAddr common.Address
	wallet      common.Address
	appName     string
	log         log.Logger

	authed atomic.Bool
	expiry atomic.Int64 // unix seconds, 0 when unauthenticated
}

// NewSession generates a fresh session key bound to the user's main wallet
// address.
func NewSession(wallet common.Address, appName string) (*Session, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, walleterr.Wrap(walleterr.ErrInternal, "generate session key: %v", err)
	}
	return &Session{
		key:         key,
		sessionAddr: crypto.PubkeyToAddress(key.PublicKey),
		wallet:      wallet,
		appName:     appName,
		log:         log.New("pkg", "clearing"),
	}, nil
}

// Address returns the session key's address.
func (s *Session) Address() common.Address {
	return s.sessionAddr
}

// Wallet returns the main wallet address the session authenticates for.
func (s *Session) Wallet() common.Address {
	return s.wallet
}

// Authenticated reports whether the current connection completed the
// handshake and the session has not expired.
func (s *Session) Authenticated() bool {
	if !s.authed.Load() {
		return false
	}
	if exp := s.expiry.Load(); exp != 0 && time.Now().Unix() >= exp {
		return false
	}
	return true
}

type authRequestParams struct {
	Address        string   `json:"address"`
	SessionKey     string   `json:"session_key"`
	AppName        string   `json:"app_name"`
	Allowances     []string `json:"allowances"`
	ProtocolScheme string   `json:"scheme"`
}

type authChallenge struct {
	ChallengeMessage string `json:"challenge_message"`
}

type authVerifyParams struct {
	Challenge string `json:"challenge"`
	Signature string `json:"signature"`
}

type authVerifyResult struct {
	Success   bool   `json:"success"`
	ExpiresAt uint64 `json:"expires_at"`
}

// OnConnect performs the challenge/response handshake. It is installed as
// the transport's on-connect hook, so it runs before the offline queue is
// flushed. Any failure closes the connection with a non-clean code and
// normal reconnection applies.
func (s *Session) OnConnect(ctx context.Context, c *wsrpc.Client) error {
	s.authed.Store(false)
	s.expiry.Store(0)

	req := authRequestParams{
		Address:        s.wallet.Hex(),
		SessionKey:     s.sessionAddr.Hex(),
		AppName:        s.appName,
		Allowances:     []string{},
		ProtocolScheme: "ecdsa",
	}
	raw, err := c.Call(ctx, MethodAuthRequest, req, s.Sign)
	if err != nil {
		return walleterr.Wrap(walleterr.ErrUnauthenticated, "auth_request: %v", err)
	}
	var challenge authChallenge
	if err := json.Unmarshal(raw, &challenge); err != nil {
		return walleterr.Wrap(walleterr.ErrUnauthenticated, "decode challenge: %v", err)
	}
	if challenge.ChallengeMessage == "" {
		return walleterr.Wrap(walleterr.ErrUnauthenticated, "empty challenge")
	}

	sig, err := s.signDigest(crypto.Keccak256([]byte(challenge.ChallengeMessage)))
	if err != nil {
		return err
	}
	raw, err = c.Call(ctx, MethodAuthVerify, authVerifyParams{
		Challenge: challenge.ChallengeMessage,
		Signature: sig,
	}, s.Sign)
	if err != nil {
		return walleterr.Wrap(walleterr.ErrUnauthenticated, "auth_verify: %v", err)
	}
	var result authVerifyResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return walleterr.Wrap(walleterr.ErrUnauthenticated, "decode auth_verify reply: %v", err)
	}
	if !result.Success {
		return walleterr.Wrap(walleterr.ErrUnauthenticated, "handshake refused")
	}
	s.expiry.Store(int64(result.ExpiresAt))
	s.authed.Store(true)
	s.log.Info("Session authenticated", "session", s.sessionAddr, "wallet", s.wallet)
	return nil
}

// Sign produces the detached request signature: secp256k1 over the keccak256
// of the canonical request encoding.
func (s *Session) Sign(p wsrpc.Payload) (string, error) {
	data, err := p.Canonical()
	if err != nil {
		return "", err
	}
	return s.signDigest(crypto.Keccak256(data))
}

func (s *Session) signDigest(digest []byte) (string, error) {
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return "", walleterr.Wrap(walleterr.ErrInternal, "session sign: %v", err)
	}
	return hexutil.Encode(sig), nil
}
