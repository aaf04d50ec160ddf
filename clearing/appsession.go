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
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/shopspring/decimal"

	"github.com/clearmesh/walletcore/store"
	"github.com/clearmesh/walletcore/walleterr"
)

// SessionStore bundles the persistence interfaces the app-session controller
// consumes.
type SessionStore interface {
	store.SessionStore
	store.ParticipantStore
}

// AppSessionService manages N-party off-chain app sessions. All mutations are
// purely off-chain: the local participant signs through the session key and
// the clearing node aggregates co-participant signatures up to quorum.
type AppSessionService struct {
	c     *Client
	query *QueryService
	db    SessionStore
	owner common.Address
	log   log.Logger

	// mu serializes local balance mutations so the allocation vectors sent
	// to the clearing node are built from a consistent snapshot.
	mu sync.Mutex

	reconcileTimeout time.Duration
	wg               sync.WaitGroup
}

// NewAppSessionService creates an app-session controller. owner is the local
// wallet address; it is the only participant this service can send from.
func NewAppSessionService(c *Client, query *QueryService, db SessionStore, owner common.Address) *AppSessionService {
	return &AppSessionService{
		c:                c,
		query:            query,
		db:               db,
		owner:            owner,
		log:              log.New("pkg", "clearing", "owner", owner),
		reconcileTimeout: 10 * time.Second,
	}
}

// Wait blocks until pending reconciliation reads have finished. Tests use it;
// production callers may ignore it.
func (s *AppSessionService) Wait() {
	s.wg.Wait()
}

// CreateSessionRequest carries the parameters of Create.
type CreateSessionRequest struct {
	Participants       []string
	Weights            []int64
	Quorum             int64
	Asset              string
	ChainID            uint64
	InitialAllocations []AppAllocation
	Protocol           string // defaults to DefaultProtocol
	Challenge          uint64 // defaults to DefaultChallenge
}

type createAppSessionParams struct {
	Definition  AppDefinition   `json:"definition"`
	Allocations []AppAllocation `json:"allocations"`
}

type appSessionResponse struct {
	AppSessionID string `json:"app_session_id"`
	Version      uint64 `json:"version"`
	Status       string `json:"status"`
}

type submitAppStateParams struct {
	AppSessionID string          `json:"app_session_id"`
	Intent       string          `json:"intent"`
	Version      uint64          `json:"version"`
	Allocations  []AppAllocation `json:"allocations"`
}

type closeAppSessionParams struct {
	AppSessionID string          `json:"app_session_id"`
	Allocations  []AppAllocation `json:"allocations,omitempty"`
}

// Create opens a new app session and persists one participant row per
// (participant, asset). All participants start invited; membership upgrades
// on their first deposit.
func (s *AppSessionService) Create(ctx context.Context, req CreateSessionRequest) (*AppSessionInfo, error) {
	if len(req.Participants) < 2 {
		return nil, walleterr.Wrap(walleterr.ErrInvalidArgument, "need at least 2 participants, got %d", len(req.Participants))
	}
	if len(req.Weights) != len(req.Participants) {
		return nil, walleterr.Wrap(walleterr.ErrInvalidArgument, "%d weights for %d participants", len(req.Weights), len(req.Participants))
	}
	var totalWeight int64
	for _, w := range req.Weights {
		if w < 0 {
			return nil, walleterr.Wrap(walleterr.ErrInvalidArgument, "negative weight %d", w)
		}
		totalWeight += w
	}
	if req.Quorum <= 0 || req.Quorum > totalWeight {
		return nil, walleterr.Wrap(walleterr.ErrInvalidArgument, "quorum %d outside (0, %d]", req.Quorum, totalWeight)
	}
	if req.Asset == "" {
		return nil, walleterr.Wrap(walleterr.ErrInvalidArgument, "empty asset")
	}
	for _, a := range req.InitialAllocations {
		if a.Amount.IsNegative() {
			return nil, walleterr.Wrap(walleterr.ErrInvalidArgument, "negative initial allocation for %s", a.Participant)
		}
	}
	if req.Protocol == "" {
		req.Protocol = DefaultProtocol
	}
	if req.Challenge == 0 {
		req.Challenge = DefaultChallenge
	}

	def := AppDefinition{
		Protocol:     req.Protocol,
		Participants: req.Participants,
		Weights:      req.Weights,
		Quorum:       req.Quorum,
		Challenge:    req.Challenge,
		Nonce:        uint64(time.Now().UnixMilli()),
	}
	var resp appSessionResponse
	err := s.c.call(ctx, MethodCreateAppSession, createAppSessionParams{
		Definition:  def,
		Allocations: req.InitialAllocations,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.AppSessionID == "" {
		return nil, walleterr.Wrap(walleterr.ErrInternal, "create_app_session reply lacks session id")
	}

	now := time.Now()
	session := store.Session{
		AppSessionID: resp.AppSessionID,
		Protocol:     req.Protocol,
		Status:       store.SessionOpen,
		Version:      resp.Version,
		Asset:        req.Asset,
		ChainID:      req.ChainID,
		Quorum:       req.Quorum,
		CreatedAt:    now,
	}
	persistErr := s.db.PutSession(ctx, session)
	for i, addr := range req.Participants {
		row := store.Participant{
			AppSessionID: resp.AppSessionID,
			Address:      common.HexToAddress(addr),
			Weight:       req.Weights[i],
			Balance:      decimal.Zero,
			Asset:        req.Asset,
			Status:       store.StatusInvited,
		}
		for _, a := range req.InitialAllocations {
			if strings.EqualFold(a.Participant, addr) {
				row.Balance = a.Amount
				break
			}
		}
		if err := s.db.UpsertParticipant(ctx, row); err != nil && persistErr == nil {
			persistErr = err
		}
	}
	if persistErr != nil {
		s.desync(resp.AppSessionID, persistErr)
	}
	s.log.Info("App session created", "session", resp.AppSessionID, "participants", len(req.Participants), "asset", req.Asset)
	return &AppSessionInfo{
		AppSessionID: resp.AppSessionID,
		Status:       resp.Status,
		Version:      resp.Version,
		Protocol:     req.Protocol,
		Participants: req.Participants,
		Weights:      req.Weights,
		Quorum:       req.Quorum,
		Allocations:  req.InitialAllocations,
	}, nil
}

// Deposit adds amount to participant's balance, raising the per-asset sum by
// exactly that amount. A successful deposit marks the depositor joined.
func (s *AppSessionService) Deposit(ctx context.Context, appSessionID string, participant common.Address, amount decimal.Decimal, asset string) (*AppSessionInfo, error) {
	if !amount.IsPositive() {
		return nil, walleterr.Wrap(walleterr.ErrInvalidArgument, "deposit amount %s must be positive", amount)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.openSession(ctx, appSessionID)
	if err != nil {
		return nil, err
	}
	row, err := s.db.Participant(ctx, appSessionID, participant, asset)
	if err != nil {
		return nil, err
	}
	allocs, err := s.allocations(ctx, appSessionID, asset, func(p *store.Participant) {
		if p.Address == participant {
			p.Balance = p.Balance.Add(amount)
		}
	})
	if err != nil {
		return nil, err
	}

	var resp appSessionResponse
	err = s.c.call(ctx, MethodSubmitAppState, submitAppStateParams{
		AppSessionID: appSessionID,
		Intent:       AppIntentDeposit,
		Version:      session.Version + 1,
		Allocations:  allocs,
	}, &resp)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	row.Balance = row.Balance.Add(amount)
	row.Status = store.StatusJoined
	row.LastSeenAt = &now
	session.Version = resp.Version
	if err := s.persist(ctx, session, row); err != nil {
		s.desync(appSessionID, err)
	}
	s.log.Debug("App session deposit", "session", appSessionID, "participant", participant, "amount", amount, "version", resp.Version)
	return s.info(ctx, session, resp.Status)
}

// Transfer moves amount from one participant to another. The per-asset sum is
// conserved. Invited participants cannot send; the local owner is exempt
// because its signature accompanies the request.
func (s *AppSessionService) Transfer(ctx context.Context, appSessionID string, from, to common.Address, amount decimal.Decimal, asset string) (*AppSessionInfo, error) {
	if !amount.IsPositive() {
		return nil, walleterr.Wrap(walleterr.ErrInvalidArgument, "transfer amount %s must be positive", amount)
	}
	if from == to {
		return nil, walleterr.Wrap(walleterr.ErrInvalidArgument, "transfer to self")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.openSession(ctx, appSessionID)
	if err != nil {
		return nil, err
	}
	sender, err := s.db.Participant(ctx, appSessionID, from, asset)
	if err != nil {
		return nil, err
	}
	receiver, err := s.db.Participant(ctx, appSessionID, to, asset)
	if err != nil {
		return nil, err
	}
	if sender.Status == store.StatusInvited && from != s.owner {
		return nil, walleterr.Wrap(walleterr.ErrPrecondition, "participant %s is invited and cannot send", from)
	}
	if sender.Balance.LessThan(amount) {
		return nil, walleterr.Wrap(walleterr.ErrPrecondition, "insufficient balance: have %s, need %s", sender.Balance, amount)
	}
	allocs, err := s.allocations(ctx, appSessionID, asset, func(p *store.Participant) {
		switch p.Address {
		case from:
			p.Balance = p.Balance.Sub(amount)
		case to:
			p.Balance = p.Balance.Add(amount)
		}
	})
	if err != nil {
		return nil, err
	}

	var resp appSessionResponse
	err = s.c.call(ctx, MethodSubmitAppState, submitAppStateParams{
		AppSessionID: appSessionID,
		Intent:       AppIntentOperate,
		Version:      session.Version + 1,
		Allocations:  allocs,
	}, &resp)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sender.Balance = sender.Balance.Sub(amount)
	sender.Status = store.StatusJoined
	sender.LastSeenAt = &now
	receiver.Balance = receiver.Balance.Add(amount)
	receiver.LastSeenAt = &now
	session.Version = resp.Version
	if err := s.persist(ctx, session, sender, receiver); err != nil {
		s.desync(appSessionID, err)
	}
	s.log.Debug("App session transfer", "session", appSessionID, "from", from, "to", to, "amount", amount, "version", resp.Version)
	return s.info(ctx, session, resp.Status)
}

// Close finalizes an open session. Closing an already-closed session is a
// no-op returning the terminal state.
func (s *AppSessionService) Close(ctx context.Context, appSessionID string) (*AppSessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.db.Session(ctx, appSessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == store.SessionClosed {
		return s.info(ctx, session, string(store.SessionClosed))
	}

	var resp appSessionResponse
	if err := s.c.call(ctx, MethodCloseAppSession, closeAppSessionParams{AppSessionID: appSessionID}, &resp); err != nil {
		return nil, err
	}

	now := time.Now()
	session.Status = store.SessionClosed
	session.ClosedAt = &now
	if resp.Version > session.Version {
		session.Version = resp.Version
	}
	if err := s.db.PutSession(ctx, session); err != nil {
		s.desync(appSessionID, err)
	}
	s.log.Info("App session closed", "session", appSessionID, "version", session.Version)
	return s.info(ctx, session, string(store.SessionClosed))
}

// openSession loads a session row and rejects closed sessions.
func (s *AppSessionService) openSession(ctx context.Context, appSessionID string) (store.Session, error) {
	session, err := s.db.Session(ctx, appSessionID)
	if err != nil {
		return store.Session{}, err
	}
	if session.Status != store.SessionOpen {
		return store.Session{}, walleterr.Wrap(walleterr.ErrPrecondition, "session %s is %s", appSessionID, session.Status)
	}
	return session, nil
}

// allocations builds the full allocation vector for one asset after applying
// mutate to a copy of every row.
func (s *AppSessionService) allocations(ctx context.Context, appSessionID, asset string, mutate func(*store.Participant)) ([]AppAllocation, error) {
	rows, err := s.db.Participants(ctx, appSessionID)
	if err != nil {
		return nil, err
	}
	var out []AppAllocation
	for _, row := range rows {
		if !strings.EqualFold(row.Asset, asset) {
			continue
		}
		mutate(&row)
		if row.Balance.IsNegative() {
			return nil, walleterr.Wrap(walleterr.ErrInternal, "allocation for %s went negative", row.Address)
		}
		out = append(out, AppAllocation{
			Participant: row.Address.Hex(),
			Asset:       asset,
			Amount:      row.Balance,
		})
	}
	if len(out) == 0 {
		return nil, walleterr.Wrap(walleterr.ErrNotFound, "no %s participants in session %s", asset, appSessionID)
	}
	return out, nil
}

func (s *AppSessionService) persist(ctx context.Context, session store.Session, rows ...store.Participant) error {
	if err := s.db.PutSession(ctx, session); err != nil {
		return err
	}
	for _, row := range rows {
		if err := s.db.UpsertParticipant(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

// desync logs a persistence failure after a successful off-chain mutation and
// schedules a reconciliation read against the clearing node.
func (s *AppSessionService) desync(appSessionID string, cause error) {
	s.log.Warn("Local state desynced from clearing node", "session", appSessionID, "err", cause)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.reconcileTimeout)
		defer cancel()
		s.reconcile(ctx, appSessionID)
	}()
}

// reconcile refreshes local rows from the clearing node's view.
func (s *AppSessionService) reconcile(ctx context.Context, appSessionID string) {
	remote, err := s.query.GetAppSession(ctx, appSessionID)
	if err != nil {
		s.log.Error("Reconciliation failed", "session", appSessionID, "err", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.db.Session(ctx, appSessionID)
	if err != nil && !errors.Is(err, walleterr.ErrNotFound) {
		s.log.Error("Reconciliation failed", "session", appSessionID, "err", err)
		return
	}
	session.AppSessionID = appSessionID
	session.Protocol = remote.Protocol
	session.Version = remote.Version
	session.Quorum = remote.Quorum
	if remote.Status == string(store.SessionClosed) {
		session.Status = store.SessionClosed
	} else {
		session.Status = store.SessionOpen
	}
	if err := s.db.PutSession(ctx, session); err != nil {
		s.log.Error("Reconciliation failed", "session", appSessionID, "err", err)
		return
	}
	for _, a := range remote.Allocations {
		addr := common.HexToAddress(a.Participant)
		row, err := s.db.Participant(ctx, appSessionID, addr, a.Asset)
		if errors.Is(err, walleterr.ErrNotFound) {
			row = store.Participant{
				AppSessionID: appSessionID,
				Address:      addr,
				Asset:        a.Asset,
				Status:       store.StatusInvited,
			}
		} else if err != nil {
			s.log.Error("Reconciliation failed", "session", appSessionID, "err", err)
			return
		}
		row.Balance = a.Amount
		if err := s.db.UpsertParticipant(ctx, row); err != nil {
			s.log.Error("Reconciliation failed", "session", appSessionID, "err", err)
			return
		}
	}
	s.log.Info("Reconciled app session", "session", appSessionID, "version", session.Version)
}

// info assembles the caller-facing view from local rows.
func (s *AppSessionService) info(ctx context.Context, session store.Session, status string) (*AppSessionInfo, error) {
	allocs, err := s.allocations(ctx, session.AppSessionID, session.Asset, func(*store.Participant) {})
	if err != nil && !errors.Is(err, walleterr.ErrNotFound) {
		return nil, err
	}
	if status == "" {
		status = string(session.Status)
	}
	return &AppSessionInfo{
		AppSessionID: session.AppSessionID,
		Status:       status,
		Version:      session.Version,
		Protocol:     session.Protocol,
		Quorum:       session.Quorum,
		Allocations:  allocs,
	}, nil
}
