package discovery

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"datatoken-market/internal/domain"
	"datatoken-market/internal/eth"
	"datatoken-market/internal/observability"
)

// Default configuration values.
const (
	// DefaultScanWindow is the trailing block window for the directional
	// transfer scans.
	DefaultScanWindow = 10000

	// DefaultMaxConcurrent bounds the resolution and enrichment fan-out.
	DefaultMaxConcurrent = 8
)

// Scanner discovers a wallet's datatoken holdings from transfer logs.
type Scanner struct {
	chain         eth.ChainReader
	resolver      *Resolver
	logger        *log.Logger
	window        uint64
	maxConcurrent int
}

// ScannerOptions contains configuration for creating a Scanner.
type ScannerOptions struct {
	Chain         eth.ChainReader
	Resolver      *Resolver
	Logger        *log.Logger
	Window        uint64 // trailing block window, DefaultScanWindow when zero
	MaxConcurrent int    // fan-out bound, DefaultMaxConcurrent when zero
}

// NewScanner creates a new holdings scanner.
func NewScanner(opts ScannerOptions) *Scanner {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	window := opts.Window
	if window == 0 {
		window = DefaultScanWindow
	}
	maxConcurrent := opts.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	resolver := opts.Resolver
	if resolver == nil {
		resolver = NewResolver(ResolverOptions{Chain: opts.Chain, Logger: logger})
	}
	return &Scanner{
		chain:         opts.Chain,
		resolver:      resolver,
		logger:        logger,
		window:        window,
		maxConcurrent: maxConcurrent,
	}
}

// Holdings is the result of a wallet scan.
type Holdings struct {
	Tokens  []domain.TokenHolding
	Message string
}

// FetchWalletTokenHoldings scans transfer logs for the wallet, resolves
// the candidate contracts to datatokens and enriches each with its live
// balance.
//
// Candidates come from three log queries: incoming and outgoing transfers
// over the trailing window, plus incoming transfers over the full history
// to catch older holdings. A failure in any of these propagates. Failures
// past that point degrade only the affected token: an unresolvable
// candidate is skipped and a failed enrichment leaves the token with a
// zero balance and default decimals.
func (s *Scanner) FetchWalletTokenHoldings(ctx context.Context, wallet common.Address) (*Holdings, error) {
	start := time.Now()

	holdings, err := s.fetch(ctx, wallet)
	if err != nil {
		observability.RecordHoldingsScan("error", time.Since(start).Seconds(), 0)
		return nil, err
	}

	observability.RecordHoldingsScan("ok", time.Since(start).Seconds(), len(holdings.Tokens))
	return holdings, nil
}

func (s *Scanner) fetch(ctx context.Context, wallet common.Address) (*Holdings, error) {
	head, err := s.chain.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("block number: %w", err)
	}

	fromBlock := new(big.Int)
	if head > s.window {
		fromBlock.SetUint64(head - s.window)
	}

	incoming, err := s.chain.FilterTransfers(ctx, eth.TransferFilter{To: &wallet, FromBlock: fromBlock})
	if err != nil {
		return nil, fmt.Errorf("incoming transfers: %w", err)
	}
	outgoing, err := s.chain.FilterTransfers(ctx, eth.TransferFilter{From: &wallet, FromBlock: fromBlock})
	if err != nil {
		return nil, fmt.Errorf("outgoing transfers: %w", err)
	}

	// Full-history inbound scan catches holdings that predate the window.
	historic, err := s.chain.FilterTransfers(ctx, eth.TransferFilter{To: &wallet})
	if err != nil {
		return nil, fmt.Errorf("historic transfers: %w", err)
	}

	windowLogs := make([]domain.TransferLog, 0, len(incoming)+len(outgoing))
	windowLogs = append(windowLogs, incoming...)
	windowLogs = append(windowLogs, outgoing...)

	candidates := collectCandidates(incoming, outgoing, historic)

	resolved := s.resolveAll(ctx, candidates)

	tokens := make([]domain.TokenHolding, len(resolved))
	var wg sync.WaitGroup
	sem := make(chan struct{}, s.maxConcurrent)
	for i, d := range resolved {
		wg.Add(1)
		go func(i int, d *domain.DatatokenDescriptor) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			tokens[i] = s.enrich(ctx, wallet, d, windowLogs)
		}(i, d)
	}
	wg.Wait()

	return &Holdings{
		Tokens:  tokens,
		Message: fmt.Sprintf("Found %d token(s)", len(tokens)),
	}, nil
}

// collectCandidates builds the deduplicated candidate address list from
// the three log sets, preserving first-seen order.
func collectCandidates(logSets ...[]domain.TransferLog) []common.Address {
	seen := make(map[string]bool)
	var candidates []common.Address
	for _, logs := range logSets {
		for _, lg := range logs {
			key := strings.ToLower(lg.Contract.Hex())
			if seen[key] {
				continue
			}
			seen[key] = true
			candidates = append(candidates, lg.Contract)
		}
	}
	return candidates
}

// resolveAll resolves candidates concurrently, then drops duplicates by
// resolved address. Two candidates can resolve to the same token when one
// of them is the token's factory.
func (s *Scanner) resolveAll(ctx context.Context, candidates []common.Address) []*domain.DatatokenDescriptor {
	results := make([]*domain.DatatokenDescriptor, len(candidates))

	var wg sync.WaitGroup
	sem := make(chan struct{}, s.maxConcurrent)
	for i, candidate := range candidates {
		wg.Add(1)
		go func(i int, candidate common.Address) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = s.resolver.Resolve(ctx, candidate)
		}(i, candidate)
	}
	wg.Wait()

	seen := make(map[string]bool)
	var resolved []*domain.DatatokenDescriptor
	for _, d := range results {
		if d == nil {
			continue
		}
		key := strings.ToLower(d.Address.Hex())
		if seen[key] {
			continue
		}
		seen[key] = true
		resolved = append(resolved, d)
	}
	return resolved
}

// enrich attaches the wallet's balance, the token's decimals and the
// window transfer entries to a resolved descriptor. Enrichment failures
// degrade the single token to a zero balance with default decimals; the
// window logs were already fetched, so no new log query is issued here.
func (s *Scanner) enrich(ctx context.Context, wallet common.Address, d *domain.DatatokenDescriptor, windowLogs []domain.TransferLog) domain.TokenHolding {
	holding := domain.TokenHolding{
		DatatokenDescriptor: *d,
		Balance:             big.NewInt(0),
		Decimals:            domain.DefaultDecimals,
	}

	balance, err := s.chain.BalanceOf(ctx, d.Address, wallet)
	if err != nil {
		s.logger.Printf("balance read for %s failed: %v", d.Address.Hex(), err)
	} else {
		decimals, err := s.chain.TokenDecimals(ctx, d.Address)
		if err != nil {
			s.logger.Printf("decimals read for %s failed: %v", d.Address.Hex(), err)
		} else {
			holding.Balance = balance
			holding.Decimals = int(decimals)
		}
	}
	holding.BalanceHuman = formatUnits(holding.Balance, holding.Decimals)

	for _, lg := range windowLogs {
		if lg.Contract == d.Address {
			holding.Transfers = append(holding.Transfers, lg)
		}
	}
	return holding
}

// formatUnits renders a raw token amount scaled by decimals, trimming
// trailing zeros from the fraction.
func formatUnits(v *big.Int, decimals int) string {
	if v == nil || v.Sign() == 0 {
		return "0"
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	quo, rem := new(big.Int).QuoRem(v, scale, new(big.Int))
	if rem.Sign() == 0 {
		return quo.String()
	}
	frac := rem.String()
	for len(frac) < decimals {
		frac = "0" + frac
	}
	frac = strings.TrimRight(frac, "0")
	return quo.String() + "." + frac
}
