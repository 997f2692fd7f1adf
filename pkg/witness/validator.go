package witness

import (
	"context"
	"fmt"

	"github.com/cuemby/flatshard/pkg/log"
	"github.com/cuemby/flatshard/pkg/metrics"
	"github.com/cuemby/flatshard/pkg/network"
	"github.com/cuemby/flatshard/pkg/signing"
	"github.com/cuemby/flatshard/pkg/wire"
	"github.com/rs/zerolog"
)

// Validator is the receiving side of §4.5's owner-forward rule: it
// validates incoming parts, stores them in a reassembly Tracker, and
// forwards the direct-send part to every other validator exactly once.
type Validator struct {
	selfID   string
	cache    *EncoderCache
	lookup   ValidatorSetLookup
	sender   network.Sender
	verifier signing.Verifier
	tracker  *Tracker
	logger   zerolog.Logger

	// OnAssembled is called with the decompressed witness once
	// reassembly completes. Optional.
	OnAssembled func(key wire.ProductionKey, payload []byte)

	// ChunkHashOf derives the chunk hash acked back to the producer
	// from the assembled payload. Required for the ack to be sent; if
	// nil, assembly still completes but no ack is emitted.
	ChunkHashOf func(payload []byte) string
}

// NewValidator builds a Validator.
func NewValidator(selfID string, cache *EncoderCache, lookup ValidatorSetLookup, sender network.Sender, verifier signing.Verifier, tracker *Tracker) *Validator {
	return &Validator{
		selfID:   selfID,
		cache:    cache,
		lookup:   lookup,
		sender:   sender,
		verifier: verifier,
		tracker:  tracker,
		logger:   log.WithComponent("witness-validator"),
	}
}

// HandleDirect processes a part sent directly from the chunk producer
// to its owning validator, per §4.5's "direct send to the part owner".
// It forwards to all other validators (excluding chunkProducerID) the
// one time this path fires.
func (v *Validator) HandleDirect(ctx context.Context, msg wire.PartialEncodedStateWitnessMessage, chunkProducerID string) error {
	return v.receive(ctx, msg.Part, chunkProducerID, true)
}

// HandleForward processes a rebroadcast part received from a peer
// validator. It never forwards again: the owner-forward rule fires
// exactly once, at the part owner.
func (v *Validator) HandleForward(ctx context.Context, msg wire.PartialEncodedStateWitnessForwardMessage, chunkProducerID string) error {
	return v.receive(ctx, msg.Part, chunkProducerID, false)
}

func (v *Validator) receive(ctx context.Context, part wire.PartialWitnessPart, chunkProducerID string, isDirectSend bool) error {
	validators, err := v.lookup.ValidatorsFor(part.Key)
	if err != nil {
		return fmt.Errorf("witness: resolving validator set: %w", err)
	}
	n := len(validators)

	if part.PartOrd < 0 || part.PartOrd >= n || len(part.Data) > part.EncodedLength {
		metrics.WitnessPartsDiscardedTotal.WithLabelValues("invalid").Inc()
		return ErrInvalidPart
	}
	if !v.verifier.Verify(chunkProducerID, partSignaturePayload(part), part.Signature) {
		metrics.WitnessPartsDiscardedTotal.WithLabelValues("bad_signature").Inc()
		return ErrInvalidPart
	}

	selfIdx := indexOf(validators, v.selfID)
	if selfIdx < 0 {
		metrics.WitnessPartsDiscardedTotal.WithLabelValues("unassigned").Inc()
		return ErrNotAssignedValidator
	}

	_, dataShards, err := v.cache.For(n)
	if err != nil {
		return err
	}

	timer := metrics.NewTimer()
	payload, assembled, err := v.tracker.ReceivePart(part.Key, part, n, dataShards)
	if err != nil {
		v.logger.Error().Err(err).Msg("witness assembly failed")
		metrics.WitnessPartsDiscardedTotal.WithLabelValues("assembly_failed").Inc()
	} else if assembled {
		timer.ObserveDuration(metrics.WitnessAssemblyDuration)
		metrics.WitnessAssembledTotal.Inc()
		if v.OnAssembled != nil {
			v.OnAssembled(part.Key, payload)
		}
		if v.ChunkHashOf != nil {
			chunkHash := v.ChunkHashOf(payload)
			ack := wire.ChunkStateWitnessAckMessage{ChunkHash: chunkHash}
			if aerr := v.sender.Send(ctx, chunkProducerID, ack); aerr != nil {
				v.logger.Error().Err(aerr).Str("chunk_hash", chunkHash).Msg("failed to send witness ack")
			}
		}
	}

	// The owner-forward rule: fires only for the direct send to the
	// part's owner (selfIdx == part.PartOrd), and only once. The owner
	// already has the part, so it is skipped too, not just the producer.
	if isDirectSend && selfIdx == part.PartOrd {
		recipients := make([]string, 0, n)
		for _, id := range validators {
			if id != v.selfID {
				recipients = append(recipients, id)
			}
		}
		forwardMsg := wire.PartialEncodedStateWitnessForwardMessage{Part: part}
		if ferr := network.Multicast(ctx, v.sender, recipients, chunkProducerID, forwardMsg); ferr != nil {
			v.logger.Error().Err(ferr).Msg("witness part forward had delivery failures")
		}
		metrics.WitnessPartsForwardedTotal.Inc()
	}

	return nil
}
