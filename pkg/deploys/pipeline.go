package deploys

import (
	"context"
	"fmt"

	"github.com/cuemby/flatshard/pkg/log"
	"github.com/cuemby/flatshard/pkg/metrics"
	"github.com/cuemby/flatshard/pkg/network"
	"github.com/cuemby/flatshard/pkg/signing"
	"github.com/cuemby/flatshard/pkg/wire"
	"github.com/cuemby/flatshard/pkg/witness"
	"github.com/rs/zerolog"
)

// Pipeline is the receiving side: it validates and reassembles
// contract-deploy parts, forwards the direct-send part to every other
// validator exactly once (mirroring witness.Validator's owner-forward
// rule), then hands each assembled batch to the compilation pool.
// Assembly reuses witness.Tracker directly since both pipelines share
// the same ProductionKey/PartialWitnessPart shapes.
type Pipeline struct {
	selfID   string
	cache    *witness.EncoderCache
	lookup   witness.ValidatorSetLookup
	sender   network.Sender
	verifier signing.Verifier
	tracker  *witness.Tracker
	pool     *CompilationPool
	compiler Compiler
	logger   zerolog.Logger
}

// NewPipeline builds a deploys Pipeline.
func NewPipeline(selfID string, cache *witness.EncoderCache, lookup witness.ValidatorSetLookup, sender network.Sender, verifier signing.Verifier, tracker *witness.Tracker, pool *CompilationPool, compiler Compiler) *Pipeline {
	return &Pipeline{
		selfID:   selfID,
		cache:    cache,
		lookup:   lookup,
		sender:   sender,
		verifier: verifier,
		tracker:  tracker,
		pool:     pool,
		compiler: compiler,
		logger:   log.WithComponent("deploys-pipeline"),
	}
}

// HandleDirect processes a part sent directly from the deploys owner to
// its owning validator. It forwards to all other validators (excluding
// producerID) the one time this path fires.
func (p *Pipeline) HandleDirect(ctx context.Context, msg wire.PartialEncodedContractDeploysMessage, producerID string) error {
	return p.receive(ctx, msg.Key, msg.Part, msg.Signature, producerID, true)
}

// HandleForward processes a rebroadcast part received from a peer
// validator. It never forwards again: the owner-forward rule fires
// exactly once, at the part owner.
func (p *Pipeline) HandleForward(ctx context.Context, msg wire.PartialEncodedContractDeploysForwardMessage, producerID string) error {
	return p.receive(ctx, msg.Key, msg.Part, msg.Signature, producerID, false)
}

func (p *Pipeline) receive(ctx context.Context, key wire.ProductionKey, part wire.PartialWitnessPart, signature []byte, producerID string, isDirectSend bool) error {
	validators, err := p.lookup.ValidatorsFor(key)
	if err != nil {
		return fmt.Errorf("deploys: resolving validator set: %w", err)
	}
	n := len(validators)

	if part.PartOrd < 0 || part.PartOrd >= n || len(part.Data) > part.EncodedLength {
		return witness.ErrInvalidPart
	}
	if !p.verifier.Verify(producerID, partSignaturePayload(key, part), signature) {
		return witness.ErrInvalidPart
	}

	selfIdx := indexOf(validators, p.selfID)
	if selfIdx < 0 {
		return witness.ErrNotAssignedValidator
	}

	_, dataShards, err := p.cache.For(n)
	if err != nil {
		return err
	}

	timer := metrics.NewTimer()
	payload, assembled, err := p.tracker.ReceivePart(key, part, n, dataShards)
	if err != nil {
		p.logger.Error().Err(err).Msg("deploys assembly failed")
		return err
	}
	if assembled {
		timer.ObserveDuration(metrics.WitnessAssemblyDuration)
		metrics.DeploysAssembledTotal.Inc()

		contracts, derr := decodeBatch(payload)
		if derr != nil {
			p.logger.Error().Err(derr).Msg("failed to decode assembled contract batch")
			return derr
		}

		epochID := key.EpochID
		p.pool.Submit(func() {
			if cerr := p.compiler.Precompile(ctx, epochID, contracts); cerr != nil {
				metrics.DeploysPrecompileErrorsTotal.Inc()
				p.logger.Error().Err(cerr).Str("epoch_id", epochID).Msg("contract precompilation failed")
			}
		})
	}

	// The owner-forward rule: fires only for the direct send to the
	// part's owner (selfIdx == part.PartOrd), and only once.
	if isDirectSend && selfIdx == part.PartOrd {
		recipients := make([]string, 0, n)
		for _, id := range validators {
			if id != p.selfID {
				recipients = append(recipients, id)
			}
		}
		forwardMsg := wire.PartialEncodedContractDeploysForwardMessage{Key: key, Part: part, Signature: signature}
		if ferr := network.Multicast(ctx, p.sender, recipients, producerID, forwardMsg); ferr != nil {
			p.logger.Error().Err(ferr).Msg("deploys part forward had delivery failures")
		}
		metrics.DeploysPartsForwardedTotal.Inc()
	}

	return nil
}

func indexOf(validators []string, id string) int {
	for i, v := range validators {
		if v == id {
			return i
		}
	}
	return -1
}
