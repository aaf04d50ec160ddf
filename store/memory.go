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

package store

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/clearmesh/walletcore/walleterr"
)

// Memory is a map-backed implementation of all store interfaces.
type Memory struct {
	mu           sync.RWMutex
	seeds        map[string][]byte
	participants map[string]Participant // key: sessionID|address|asset
	sessions     map[string]Session
	channels     map[string]Channel // key: userID|chainID
	byChannelID  map[common.Hash]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		seeds:        make(map[string][]byte),
		participants: make(map[string]Participant),
		sessions:     make(map[string]Session),
		channels:     make(map[string]Channel),
		byChannelID:  make(map[common.Hash]string),
	}
}

func participantKey(sessionID string, addr common.Address, asset string) string {
	return sessionID + "|" + strings.ToLower(addr.Hex()) + "|" + strings.ToLower(asset)
}

func channelKey(userID string, chainID uint64) string {
	return userID + "|" + strconv.FormatUint(chainID, 10)
}

// Seed implements SeedStore.
func (m *Memory) Seed(ctx context.Context, userID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seed, ok := m.seeds[userID]
	if !ok {
		return nil, walleterr.Wrap(walleterr.ErrNotFound, "no seed for user %s", userID)
	}
	return append([]byte(nil), seed...), nil
}

// PutSeed implements SeedStore. Seeds are immutable; a second write for the
// same user is rejected.
func (m *Memory) PutSeed(ctx context.Context, userID string, seed []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seeds[userID]; ok {
		return walleterr.Wrap(walleterr.ErrPrecondition, "seed already exists for user %s", userID)
	}
	m.seeds[userID] = append([]byte(nil), seed...)
	return nil
}

// UpsertParticipant implements ParticipantStore.
func (m *Memory) UpsertParticipant(ctx context.Context, p Participant) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := participantKey(p.AppSessionID, p.Address, p.Asset)
	if prev, ok := m.participants[key]; ok {
		p.ID = prev.ID
	}
	m.participants[key] = p
	return nil
}

// Participants implements ParticipantStore.
func (m *Memory) Participants(ctx context.Context, appSessionID string) ([]Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Participant
	for _, p := range m.participants {
		if p.AppSessionID == appSessionID {
			out = append(out, p)
		}
	}
	return out, nil
}

// Participant implements ParticipantStore.
func (m *Memory) Participant(ctx context.Context, appSessionID string, addr common.Address, asset string) (Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.participants[participantKey(appSessionID, addr, asset)]
	if !ok {
		return Participant{}, walleterr.Wrap(walleterr.ErrNotFound, "participant %s not in session %s", addr.Hex(), appSessionID)
	}
	return p, nil
}

// PutSession implements SessionStore.
func (m *Memory) PutSession(ctx context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.AppSessionID] = s
	return nil
}

// Session implements SessionStore.
func (m *Memory) Session(ctx context.Context, appSessionID string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[appSessionID]
	if !ok {
		return Session{}, walleterr.Wrap(walleterr.ErrNotFound, "unknown app session %s", appSessionID)
	}
	return s, nil
}

// PutChannel implements ChannelStore.
func (m *Memory) PutChannel(ctx context.Context, c Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := channelKey(c.UserID, c.ChainID)
	if prevKey, ok := m.byChannelID[c.ChannelID]; ok && prevKey != key {
		return walleterr.Wrap(walleterr.ErrPrecondition, "channel %s already bound", c.ChannelID.Hex())
	}
	if prev, ok := m.channels[key]; ok && prev.ChannelID != c.ChannelID {
		// The row is being replaced by a new channel; the old id must not
		// resolve to it anymore.
		delete(m.byChannelID, prev.ChannelID)
	}
	m.channels[key] = c
	m.byChannelID[c.ChannelID] = key
	return nil
}

// ChannelByID implements ChannelStore.
func (m *Memory) ChannelByID(ctx context.Context, id common.Hash) (Channel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key, ok := m.byChannelID[id]
	if !ok {
		return Channel{}, walleterr.Wrap(walleterr.ErrNotFound, "unknown channel %s", id.Hex())
	}
	return m.channels[key], nil
}
