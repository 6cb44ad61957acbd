// Package discovery resolves candidate contract addresses to datatokens
// and scans wallets for datatoken holdings.
package discovery

import (
	"context"
	"log"

	"github.com/ethereum/go-ethereum/common"

	"datatoken-market/internal/domain"
	"datatoken-market/internal/eth"
	"datatoken-market/internal/observability"
)

// Resolver classifies candidate addresses discovered from transfer logs.
type Resolver struct {
	chain  eth.ChainReader
	logger *log.Logger
}

// ResolverOptions contains configuration for creating a Resolver.
type ResolverOptions struct {
	Chain  eth.ChainReader
	Logger *log.Logger
}

// NewResolver creates a new candidate resolver.
func NewResolver(opts ResolverOptions) *Resolver {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Resolver{
		chain:  opts.Chain,
		logger: logger,
	}
}

// Resolve classifies a candidate address. It returns nil when the address
// is not a datatoken and cannot be resolved through a factory.
//
// The probe order is fixed: no deployed code short-circuits to nil, a
// direct datatoken probe wins before any factory lookup, and a factory
// resolves through its first member that probes as a datatoken. Probe
// failures are negative signals, not errors; they are logged and the next
// strategy is tried.
func (r *Resolver) Resolve(ctx context.Context, candidate common.Address) *domain.DatatokenDescriptor {
	observability.RecordCandidateProbed()

	code, err := r.chain.CodeAt(ctx, candidate)
	if err != nil {
		r.logger.Printf("code lookup for %s failed: %v", candidate.Hex(), err)
		observability.RecordCandidateResolved("none")
		return nil
	}
	if len(code) == 0 {
		observability.RecordCandidateResolved("none")
		return nil
	}

	if d, err := r.directProbe(ctx, candidate); err == nil && d.Valid() {
		r.checkDispenser(ctx, d)
		observability.RecordCandidateResolved("direct")
		return d
	} else if err != nil {
		r.logger.Printf("direct probe for %s failed: %v", candidate.Hex(), err)
	}

	if d := r.factoryProbe(ctx, candidate); d != nil {
		r.checkDispenser(ctx, d)
		observability.RecordCandidateResolved("factory")
		return d
	}

	observability.RecordCandidateResolved("none")
	return nil
}

// directProbe reads a candidate as a datatoken. The returned descriptor
// may carry a zero parent; the caller decides whether that counts.
func (r *Resolver) directProbe(ctx context.Context, token common.Address) (*domain.DatatokenDescriptor, error) {
	name, err := r.chain.TokenName(ctx, token)
	if err != nil {
		return nil, err
	}
	symbol, err := r.chain.TokenSymbol(ctx, token)
	if err != nil {
		return nil, err
	}
	parent, err := r.chain.ParentNFTAddress(ctx, token)
	if err != nil {
		return nil, err
	}

	return &domain.DatatokenDescriptor{
		Address:   token,
		Name:      name,
		Symbol:    symbol,
		ParentNFT: parent,
	}, nil
}

// factoryProbe reads the candidate as a token factory and resolves its
// first member that probes as a datatoken. Only one member token is ever
// resolved per factory.
func (r *Resolver) factoryProbe(ctx context.Context, factory common.Address) *domain.DatatokenDescriptor {
	members, err := r.chain.TokensList(ctx, factory)
	if err != nil {
		r.logger.Printf("factory probe for %s failed: %v", factory.Hex(), err)
		return nil
	}

	for _, member := range members {
		d, err := r.directProbe(ctx, member)
		if err != nil {
			r.logger.Printf("factory member probe for %s failed: %v", member.Hex(), err)
			continue
		}
		if !d.Valid() {
			continue
		}
		d.InitialTokenAddress = factory
		return d
	}
	return nil
}

// checkDispenser marks the descriptor when a dispenser is registered.
// Best-effort: lookup failures only log and never affect resolution.
func (r *Resolver) checkDispenser(ctx context.Context, d *domain.DatatokenDescriptor) {
	dispensers, err := r.chain.Dispensers(ctx, d.Address)
	if err != nil {
		r.logger.Printf("dispenser lookup for %s failed: %v", d.Address.Hex(), err)
		return
	}
	d.HasDispenser = len(dispensers) > 0
}
