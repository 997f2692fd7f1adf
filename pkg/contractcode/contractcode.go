// Package contractcode serves the on-demand contract-code request path:
// a validator that hits a code hash missing from its compiled-contract
// cache asks a chunk producer for it directly, instead of waiting for
// the next full contract-deploys fan-in.
package contractcode

import (
	"context"
	"fmt"
	"math/rand"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cuemby/flatshard/pkg/log"
	"github.com/cuemby/flatshard/pkg/metrics"
	"github.com/cuemby/flatshard/pkg/network"
	"github.com/cuemby/flatshard/pkg/signing"
	"github.com/cuemby/flatshard/pkg/wire"
	"github.com/rs/zerolog"
)

// ProducerSetLookup resolves the chunk producers eligible to answer a
// code request for a given production key.
type ProducerSetLookup interface {
	ProducersFor(key wire.ProductionKey) ([]string, error)
}

// pendingRequest tracks the hashes still outstanding for one in-flight
// ContractCodeRequestMessage, so a late or duplicate response can be
// told apart from one that still has unanswered hashes.
type pendingRequest struct {
	missing map[string]bool
}

// Cache serves code hash lookups from an LRU of compiled contracts and
// drives the request/response exchange for whatever is missing.
type Cache struct {
	selfID   string
	lru      *lru.Cache[string, []byte]
	lookup   ProducerSetLookup
	sender   network.Sender
	signer   signing.Signer
	verifier signing.Verifier
	logger   zerolog.Logger

	pending map[string]*pendingRequest // keyed by the production key's string form

	// rand is overridable in tests for deterministic producer selection.
	rand func(n int) int
}

// New builds a Cache with room for size compiled contracts.
func New(selfID string, size int, lookup ProducerSetLookup, sender network.Sender, signer signing.Signer, verifier signing.Verifier) (*Cache, error) {
	c, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("contractcode: building lru cache: %w", err)
	}
	return &Cache{
		selfID:   selfID,
		lru:      c,
		lookup:   lookup,
		sender:   sender,
		signer:   signer,
		verifier: verifier,
		logger:   log.WithComponent("contract-code-cache"),
		pending:  make(map[string]*pendingRequest),
		rand:     rand.Intn,
	}, nil
}

// Get returns a cached contract's code, if present.
func (c *Cache) Get(codeHash string) ([]byte, bool) {
	return c.lru.Get(codeHash)
}

// Put inserts or refreshes a compiled contract in the cache.
func (c *Cache) Put(codeHash string, code []byte) {
	c.lru.Add(codeHash, code)
}

func pendingKey(key wire.ProductionKey) string {
	return fmt.Sprintf("%s/%d/%d", key.EpochID, key.ShardID, key.HeightCreated)
}

// HandleChunkContractAccesses computes which of the accessed code
// hashes are missing from the cache and, if any are, requests them from
// a pseudo-randomly selected producer for that shard.
func (c *Cache) HandleChunkContractAccesses(ctx context.Context, msg wire.ChunkContractAccessesMessage) error {
	var missing []string
	for _, hash := range msg.CodeHashes {
		if _, ok := c.lru.Get(hash); !ok {
			missing = append(missing, hash)
			metrics.ContractCodeCacheMisses.Inc()
		}
	}
	if len(missing) == 0 {
		return nil
	}

	producers, err := c.lookup.ProducersFor(msg.Key)
	if err != nil {
		return fmt.Errorf("contractcode: resolving producer set: %w", err)
	}
	if len(producers) == 0 {
		return fmt.Errorf("contractcode: no producers available for key %+v", msg.Key)
	}
	producerID := producers[c.rand(len(producers))]

	pk := pendingKey(msg.Key)
	missingSet := make(map[string]bool, len(missing))
	for _, h := range missing {
		missingSet[h] = true
	}
	c.pending[pk] = &pendingRequest{missing: missingSet}

	req := wire.ContractCodeRequestMessage{Key: msg.Key, CodeHashes: missing, RequesterID: c.selfID}
	sig, err := c.signer.Sign(requestSignaturePayload(req))
	if err != nil {
		return fmt.Errorf("contractcode: signing request: %w", err)
	}
	req.Signature = sig

	if err := c.sender.Send(ctx, producerID, req); err != nil {
		return fmt.Errorf("contractcode: sending request to %s: %w", producerID, err)
	}
	return nil
}

// HandleCodeRequest answers a peer's ContractCodeRequestMessage with
// whatever of the requested hashes this node has cached, in the
// requested order.
func (c *Cache) HandleCodeRequest(ctx context.Context, req wire.ContractCodeRequestMessage) error {
	codes := make([][]byte, 0, len(req.CodeHashes))
	for _, hash := range req.CodeHashes {
		code, ok := c.lru.Get(hash)
		if !ok {
			continue
		}
		codes = append(codes, code)
	}

	resp := wire.ContractCodeResponseMessage{Key: req.Key, Codes: codes}
	sig, err := c.signer.Sign(responseSignaturePayload(resp))
	if err != nil {
		return fmt.Errorf("contractcode: signing response: %w", err)
	}
	resp.Signature = sig

	return c.sender.Send(ctx, req.RequesterID, resp)
}

// HandleCodeResponse validates and caches a peer's response, clearing
// the matching pending request once every hash it still needed has
// been answered.
func (c *Cache) HandleCodeResponse(responderID string, resp wire.ContractCodeResponseMessage) error {
	if !c.verifier.Verify(responderID, responseSignaturePayload(resp), resp.Signature) {
		return fmt.Errorf("contractcode: response from %s failed signature verification", responderID)
	}

	pk := pendingKey(resp.Key)
	pending, ok := c.pending[pk]
	if !ok {
		// Late or duplicate response for a request we're no longer
		// tracking; still worth caching the codes we got.
		c.logger.Debug().Str("responder", responderID).Msg("contract code response with no pending request")
	}

	for _, code := range resp.Codes {
		hash := contentHash(code)
		c.lru.Add(hash, code)
		if pending != nil {
			delete(pending.missing, hash)
		}
	}

	if pending != nil && len(pending.missing) == 0 {
		delete(c.pending, pk)
	}
	return nil
}

// Pending reports how many hashes are still outstanding for key, 0 if
// there is no in-flight request.
func (c *Cache) Pending(key wire.ProductionKey) int {
	p, ok := c.pending[pendingKey(key)]
	if !ok {
		return 0
	}
	return len(p.missing)
}
