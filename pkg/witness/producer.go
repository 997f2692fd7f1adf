package witness

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/cuemby/flatshard/pkg/log"
	"github.com/cuemby/flatshard/pkg/metrics"
	"github.com/cuemby/flatshard/pkg/network"
	"github.com/cuemby/flatshard/pkg/signing"
	"github.com/cuemby/flatshard/pkg/wire"
	"github.com/rs/zerolog"
)

// Producer is the sender path: a chunk producer that encodes one
// witness into N parts and ships each to its assigned validator.
type Producer struct {
	selfID string
	cache  *EncoderCache
	lookup ValidatorSetLookup
	sender network.Sender
	signer signing.Signer
	acks   *AckTracker
	logger zerolog.Logger
}

// NewProducer builds a Producer.
func NewProducer(selfID string, cache *EncoderCache, lookup ValidatorSetLookup, sender network.Sender, signer signing.Signer, acks *AckTracker) *Producer {
	return &Producer{
		selfID: selfID,
		cache:  cache,
		lookup: lookup,
		sender: sender,
		signer: signer,
		acks:   acks,
		logger: log.WithComponent("witness-producer"),
	}
}

// partSignaturePayload is what gets signed/verified for a part: the
// production key, part_ord and data, so a signature can't be replayed
// across parts or production keys.
func partSignaturePayload(part wire.PartialWitnessPart) []byte {
	var buf []byte
	buf = append(buf, []byte(part.Key.EpochID)...)
	var shardID, height [8]byte
	binary.LittleEndian.PutUint64(shardID[:], part.Key.ShardID)
	binary.LittleEndian.PutUint64(height[:], part.Key.HeightCreated)
	buf = append(buf, shardID[:]...)
	buf = append(buf, height[:]...)
	var ord [8]byte
	binary.LittleEndian.PutUint64(ord[:], uint64(part.PartOrd))
	buf = append(buf, ord[:]...)
	buf = append(buf, part.Data...)
	return buf
}

// SendWitness implements the sender path of §4.5: look up validators,
// compress+encode into N parts, emit one signed unicast per validator,
// and start RTT tracking for the producer's own acks.
func (p *Producer) SendWitness(ctx context.Context, key wire.ProductionKey, chunkHash string, witness []byte) error {
	validators, err := p.lookup.ValidatorsFor(key)
	if err != nil {
		return fmt.Errorf("witness: resolving validator set: %w", err)
	}
	n := len(validators)
	if n == 0 {
		return fmt.Errorf("witness: empty validator set for key %+v", key)
	}

	timer := metrics.NewTimer()
	parts, encodedLength, err := Encode(p.cache, witness, n)
	if err != nil {
		return err
	}
	timer.ObserveDurationVec(metrics.EncodeDuration, "witness")

	for i, shard := range parts {
		part := wire.PartialWitnessPart{
			Key:           key,
			PartOrd:       i,
			Data:          shard,
			EncodedLength: encodedLength,
		}
		sig, err := p.signer.Sign(partSignaturePayload(part))
		if err != nil {
			return fmt.Errorf("witness: signing part %d: %w", i, err)
		}
		part.Signature = sig

		msg := wire.PartialEncodedStateWitnessMessage{Part: part}
		if err := p.sender.Send(ctx, validators[i], msg); err != nil {
			p.logger.Error().Err(err).Str("validator", validators[i]).Msg("failed to send witness part")
			continue
		}
		metrics.WitnessPartsSentTotal.Inc()
	}

	p.acks.RecordSent(chunkHash, len(witness), n)
	return nil
}

// HandleAck records a validator's ack of chunkHash.
func (p *Producer) HandleAck(ack wire.ChunkStateWitnessAckMessage, validatorID string) {
	rtt, complete, ok := p.acks.RecordAck(ack.ChunkHash, validatorID)
	if !ok {
		return
	}
	p.logger.Debug().
		Str("chunk_hash", ack.ChunkHash).
		Str("validator", validatorID).
		Dur("rtt", rtt).
		Bool("complete", complete).
		Msg("witness ack received")
}
