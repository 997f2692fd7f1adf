package deploys

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/cuemby/flatshard/pkg/log"
	"github.com/cuemby/flatshard/pkg/metrics"
	"github.com/cuemby/flatshard/pkg/network"
	"github.com/cuemby/flatshard/pkg/signing"
	"github.com/cuemby/flatshard/pkg/wire"
	"github.com/cuemby/flatshard/pkg/witness"
	"github.com/rs/zerolog"
)

// Producer is the sending side of the contract-deploys pipeline: it
// reuses witness's Reed-Solomon cache and codec, parameterized by its
// own data ratio, and sends each validator its own part directly. The
// owner-forward rebroadcast that gets every part to every validator
// runs on the receiving side, in Pipeline, the same as witness.Producer
// leaves forwarding to witness.Validator.
type Producer struct {
	selfID string
	cache  *witness.EncoderCache
	lookup witness.ValidatorSetLookup
	sender network.Sender
	signer signing.Signer
	logger zerolog.Logger
}

// NewProducer builds a deploys Producer.
func NewProducer(selfID string, cache *witness.EncoderCache, lookup witness.ValidatorSetLookup, sender network.Sender, signer signing.Signer) *Producer {
	return &Producer{
		selfID: selfID,
		cache:  cache,
		lookup: lookup,
		sender: sender,
		signer: signer,
		logger: log.WithComponent("deploys-producer"),
	}
}

func partSignaturePayload(key wire.ProductionKey, part wire.PartialWitnessPart) []byte {
	var buf []byte
	buf = append(buf, []byte(key.EpochID)...)
	var shardID, height, ord [8]byte
	binary.LittleEndian.PutUint64(shardID[:], key.ShardID)
	binary.LittleEndian.PutUint64(height[:], key.HeightCreated)
	binary.LittleEndian.PutUint64(ord[:], uint64(part.PartOrd))
	buf = append(buf, shardID[:]...)
	buf = append(buf, height[:]...)
	buf = append(buf, ord[:]...)
	buf = append(buf, part.Data...)
	return buf
}

// SendDeploys encodes contracts into one part per validator and ships
// each directly to its owning validator; Pipeline forwards from there.
func (p *Producer) SendDeploys(ctx context.Context, key wire.ProductionKey, contracts [][]byte) error {
	validators, err := p.lookup.ValidatorsFor(key)
	if err != nil {
		return fmt.Errorf("deploys: resolving validator set: %w", err)
	}
	n := len(validators)
	if n == 0 {
		return fmt.Errorf("deploys: empty validator set for key %+v", key)
	}

	payload, err := encodeBatch(contracts)
	if err != nil {
		return err
	}

	timer := metrics.NewTimer()
	parts, encodedLength, err := witness.Encode(p.cache, payload, n)
	if err != nil {
		return err
	}
	timer.ObserveDurationVec(metrics.EncodeDuration, "deploys")

	for i, shard := range parts {
		part := wire.PartialWitnessPart{
			Key:           key,
			PartOrd:       i,
			Data:          shard,
			EncodedLength: encodedLength,
		}
		sig, err := p.signer.Sign(partSignaturePayload(key, part))
		if err != nil {
			return fmt.Errorf("deploys: signing part %d: %w", i, err)
		}

		msg := wire.PartialEncodedContractDeploysMessage{Key: key, Part: part, Signature: sig}
		if err := p.sender.Send(ctx, validators[i], msg); err != nil {
			p.logger.Error().Err(err).Str("validator", validators[i]).Msg("failed to send deploy part")
			continue
		}
	}

	return nil
}
