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

// Package store declares the persistence interfaces the wallet core consumes
// for seeds, app-session bookkeeping and channel rows, together with an
// in-memory implementation used by tests and single-node deployments.
// Durable backends live outside the core.
package store

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ParticipantStatus tracks membership of one participant in an app session.
type ParticipantStatus string

const (
	StatusInvited ParticipantStatus = "invited"
	StatusJoined  ParticipantStatus = "joined"
	StatusLeft    ParticipantStatus = "left"
)

// Participant is the local bookkeeping row for one (session, address, asset)
// tuple. Balance is in human units of Asset, matching the decimal strings the
// clearing node speaks on the wire, not in smallest units.
type Participant struct {
	ID           string
	AppSessionID string
	Address      common.Address
	Weight       int64
	Balance      decimal.Decimal
	Asset        string
	Status       ParticipantStatus
	LastSeenAt   *time.Time
}

// SessionStatus is the lifecycle state of an app session.
type SessionStatus string

const (
	SessionOpen   SessionStatus = "open"
	SessionClosed SessionStatus = "closed"
)

// Session is the local row for one app session.
type Session struct {
	AppSessionID string
	Protocol     string
	Status       SessionStatus
	Version      uint64
	Asset        string
	ChainID      uint64
	Quorum       int64
	CreatedAt    time.Time
	ClosedAt     *time.Time
}

// Channel is the local row for one payment channel, unique per
// (UserID, ChainID).
type Channel struct {
	UserID    string
	ChainID   uint64
	ChannelID common.Hash
	Token     common.Address
	Version   uint64
	Status    string
	UpdatedAt time.Time
}

// SeedStore owns encrypted seed records. Seed returns walleterr.ErrNotFound
// for unknown users; seeds are immutable once written.
type SeedStore interface {
	Seed(ctx context.Context, userID string) ([]byte, error)
	PutSeed(ctx context.Context, userID string, seed []byte) error
}

// ParticipantStore persists participant rows with uniqueness on
// (AppSessionID, Address, Asset).
type ParticipantStore interface {
	UpsertParticipant(ctx context.Context, p Participant) error
	Participants(ctx context.Context, appSessionID string) ([]Participant, error)
	Participant(ctx context.Context, appSessionID string, addr common.Address, asset string) (Participant, error)
}

// SessionStore persists app-session rows.
type SessionStore interface {
	PutSession(ctx context.Context, s Session) error
	Session(ctx context.Context, appSessionID string) (Session, error)
}

// ChannelStore persists channel rows with uniqueness on (UserID, ChainID).
type ChannelStore interface {
	PutChannel(ctx context.Context, c Channel) error
	ChannelByID(ctx context.Context, id common.Hash) (Channel, error)
}
