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

// Package wallet aggregates per-chain accounts into one multi-chain view:
// address derivation, progressive balance streams, portfolio and transaction
// queries through the indexer, and the outgoing send path.
package wallet

import (
	"context"
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/lightningnetwork/lnd/clock"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/clearmesh/walletcore/indexer"
	"github.com/clearmesh/walletcore/internal/ttlcache"
	"github.com/clearmesh/walletcore/params"
	"github.com/clearmesh/walletcore/signer"
	"github.com/clearmesh/walletcore/store"
	"github.com/clearmesh/walletcore/walleterr"
)

const (
	defaultAddressTTL = time.Minute
	defaultBalanceTTL = 30 * time.Second
	defaultHistoryTTL = time.Minute

	seedBytes = 32
)

// Config configures a Service. Zero fields take the documented defaults.
type Config struct {
	Seeds   store.SeedStore
	Deriver signer.Deriver
	Indexer *indexer.Client

	// Chains defaults to params.AllChains.
	Chains []params.Chain

	AddressTTL time.Duration
	BalanceTTL time.Duration
	HistoryTTL time.Duration

	Clock  clock.Clock
	Logger log.Logger
}

// Service is the multi-chain aggregator.
type Service struct {
	cfg    Config
	chains []params.Chain
	log    log.Logger
	clk    clock.Clock

	accounts  *ttlcache.Cache[string, signer.Account]
	positions *ttlcache.Cache[string, []indexer.Position]
	history   *ttlcache.Cache[string, historyEntry]
	decimals  *decimalsCache

	sf singleflight.Group
}

// NewService creates an aggregator over the configured chains.
func NewService(cfg Config) *Service {
	if len(cfg.Chains) == 0 {
		cfg.Chains = params.AllChains
	}
	if cfg.AddressTTL == 0 {
		cfg.AddressTTL = defaultAddressTTL
	}
	if cfg.BalanceTTL == 0 {
		cfg.BalanceTTL = defaultBalanceTTL
	}
	if cfg.HistoryTTL == 0 {
		cfg.HistoryTTL = defaultHistoryTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New("pkg", "wallet")
	}
	return &Service{
		cfg:       cfg,
		chains:    cfg.Chains,
		log:       cfg.Logger,
		clk:       cfg.Clock,
		accounts:  ttlcache.New[string, signer.Account](cfg.AddressTTL, cfg.Clock),
		positions: ttlcache.New[string, []indexer.Position](cfg.BalanceTTL, cfg.Clock),
		history:   ttlcache.New[string, historyEntry](cfg.HistoryTTL, cfg.Clock),
		decimals:  newDecimalsCache(cfg.Clock),
	}
}

// cacheKey composes the per-user per-chain cache key.
func cacheKey(userID string, chain params.Chain) string {
	return userID + "|" + string(chain)
}

// indexerChainID maps a chain onto the indexer's chain id. Account
// abstraction variants share the underlying network.
func indexerChainID(chain params.Chain) string {
	return strings.TrimSuffix(string(chain), "-aa")
}

// ensureSeed returns the user's seed, creating one on first use. A concurrent
// creator winning the write is tolerated by re-reading.
func (s *Service) ensureSeed(ctx context.Context, userID string) ([]byte, error) {
	seed, err := s.cfg.Seeds.Seed(ctx, userID)
	if err == nil {
		return seed, nil
	}
	if !errors.Is(err, walleterr.ErrNotFound) {
		return nil, err
	}
	seed = make([]byte, seedBytes)
	if _, err := rand.Read(seed); err != nil {
		return nil, walleterr.Wrap(walleterr.ErrInternal, "generate seed: %v", err)
	}
	if err := s.cfg.Seeds.PutSeed(ctx, userID, seed); err != nil {
		if errors.Is(err, walleterr.ErrPrecondition) {
			return s.cfg.Seeds.Seed(ctx, userID)
		}
		return nil, err
	}
	s.log.Info("Created seed", "user", userID)
	return seed, nil
}

// account derives (or returns the cached) account for one chain.
func (s *Service) account(ctx context.Context, userID string, chain params.Chain) (signer.Account, error) {
	if !params.IsSupported(chain) {
		return nil, walleterr.Wrap(walleterr.ErrInvalidArgument, "unsupported chain %q", chain)
	}
	key := cacheKey(userID, chain)
	if acct, ok := s.accounts.Get(key); ok {
		return acct, nil
	}
	v, err, _ := s.sf.Do("acct|"+key, func() (interface{}, error) {
		if acct, ok := s.accounts.Get(key); ok {
			return acct, nil
		}
		seed, err := s.ensureSeed(ctx, userID)
		if err != nil {
			return nil, err
		}
		acct, err := s.cfg.Deriver.Derive(ctx, seed, chain, 0)
		if err != nil {
			return nil, err
		}
		s.accounts.Put(key, acct)
		return acct, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(signer.Account), nil
}

// ChainAddress is one derived address. Address is empty and Err set when
// derivation failed for that chain.
type ChainAddress struct {
	Chain   params.Chain
	Address string
	Err     error
}

// Addresses derives one address per configured chain. A failing chain yields
// an entry with Err set; the others are unaffected.
func (s *Service) Addresses(ctx context.Context, userID string) (map[params.Chain]ChainAddress, error) {
	var (
		mu  sync.Mutex
		out = make(map[params.Chain]ChainAddress, len(s.chains))
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, chain := range s.chains {
		chain := chain
		g.Go(func() error {
			res := ChainAddress{Chain: chain}
			acct, err := s.account(gctx, userID, chain)
			if err != nil {
				s.log.Warn("Address derivation failed", "user", userID, "chain", chain, "err", err)
				res.Err = err
			} else {
				res.Address = acct.Address()
			}
			mu.Lock()
			out[chain] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// primaryAddresses returns the addresses used for cross-chain queries: the
// EVM EOA, the first account-abstraction address and the solana address.
func (s *Service) primaryAddresses(ctx context.Context, userID string) ([]string, error) {
	var out []string
	pick := func(chain params.Chain) {
		acct, err := s.account(ctx, userID, chain)
		if err != nil {
			s.log.Warn("Primary address unavailable", "user", userID, "chain", chain, "err", err)
			return
		}
		out = append(out, acct.Address())
	}
	pick(params.Ethereum)
	pick(params.EthereumAA)
	pick(params.Solana)
	if len(out) == 0 {
		return nil, walleterr.Wrap(walleterr.ErrInternal, "no primary addresses for user %s", userID)
	}
	return out, nil
}

// invalidateChain drops the cached indexer data for one (user, chain) after a
// state-changing operation.
func (s *Service) invalidateChain(userID string, chain params.Chain) {
	s.positions.Invalidate(cacheKey(userID, chain))
	s.history.Invalidate(cacheKey(userID, chain))
}
