package contractcode

import (
	"context"
	"testing"

	"github.com/cuemby/flatshard/pkg/network"
	"github.com/cuemby/flatshard/pkg/signing"
	"github.com/cuemby/flatshard/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticProducers struct{ ids []string }

func (s staticProducers) ProducersFor(wire.ProductionKey) ([]string, error) { return s.ids, nil }

func TestHandleChunkContractAccessesSkipsCachedHashes(t *testing.T) {
	const selfID = "validator-0"
	producers := staticProducers{ids: []string{"producer-0"}}
	rec := network.NewRecorder()
	signer := signing.Fake{ValidatorID: selfID}
	verifier := signing.Fake{ValidatorID: "producer-0"}

	cache, err := New(selfID, 16, producers, rec, signer, verifier)
	require.NoError(t, err)
	cache.Put("hash-cached", []byte("cached-code"))

	msg := wire.ChunkContractAccessesMessage{
		Key:        wire.ProductionKey{EpochID: "e0", ShardID: 1, HeightCreated: 5},
		CodeHashes: []string{"hash-cached", "hash-missing"},
	}
	require.NoError(t, cache.HandleChunkContractAccesses(context.Background(), msg))

	inbox := rec.Inbox("producer-0")
	require.Len(t, inbox, 1)
	req := inbox[0].(wire.ContractCodeRequestMessage)
	assert.Equal(t, []string{"hash-missing"}, req.CodeHashes)
	assert.Equal(t, 1, cache.Pending(msg.Key))
}

func TestHandleChunkContractAccessesNoOpWhenEverythingCached(t *testing.T) {
	producers := staticProducers{ids: []string{"producer-0"}}
	rec := network.NewRecorder()
	signer := signing.Fake{ValidatorID: "validator-0"}
	verifier := signing.Fake{ValidatorID: "producer-0"}

	cache, err := New("validator-0", 16, producers, rec, signer, verifier)
	require.NoError(t, err)
	cache.Put("hash-a", []byte("code-a"))

	msg := wire.ChunkContractAccessesMessage{
		Key:        wire.ProductionKey{EpochID: "e0", ShardID: 1, HeightCreated: 5},
		CodeHashes: []string{"hash-a"},
	}
	require.NoError(t, cache.HandleChunkContractAccesses(context.Background(), msg))
	assert.Empty(t, rec.Inbox("producer-0"))
}

func TestHandleCodeRequestReturnsOnlyCachedCodes(t *testing.T) {
	rec := network.NewRecorder()
	signer := signing.Fake{ValidatorID: "producer-0"}
	verifier := signing.Fake{ValidatorID: "requester-0"}
	producerCache, err := New("producer-0", 16, staticProducers{}, rec, signer, verifier)
	require.NoError(t, err)
	producerCache.Put("hash-a", []byte("code-a"))

	req := wire.ContractCodeRequestMessage{
		Key:         wire.ProductionKey{EpochID: "e0", ShardID: 1, HeightCreated: 5},
		CodeHashes:  []string{"hash-a", "hash-missing"},
		RequesterID: "requester-0",
	}
	require.NoError(t, producerCache.HandleCodeRequest(context.Background(), req))

	inbox := rec.Inbox("requester-0")
	require.Len(t, inbox, 1)
	resp := inbox[0].(wire.ContractCodeResponseMessage)
	require.Len(t, resp.Codes, 1)
	assert.Equal(t, []byte("code-a"), resp.Codes[0])
}

func TestHandleCodeResponseCachesAndClearsPending(t *testing.T) {
	producers := staticProducers{ids: []string{"producer-0"}}
	rec := network.NewRecorder()
	signer := signing.Fake{ValidatorID: "validator-0"}
	verifier := signing.Fake{ValidatorID: "producer-0"}

	cache, err := New("validator-0", 16, producers, rec, signer, verifier)
	require.NoError(t, err)

	key := wire.ProductionKey{EpochID: "e0", ShardID: 1, HeightCreated: 5}
	code := []byte("compiled-bytecode")
	hash := contentHash(code)
	msg := wire.ChunkContractAccessesMessage{Key: key, CodeHashes: []string{hash}}
	require.NoError(t, cache.HandleChunkContractAccesses(context.Background(), msg))
	assert.Equal(t, 1, cache.Pending(key))

	resp := wire.ContractCodeResponseMessage{Key: key, Codes: [][]byte{code}}
	resp.Signature, err = signing.Fake{ValidatorID: "producer-0"}.Sign(responseSignaturePayload(resp))
	require.NoError(t, err)

	require.NoError(t, cache.HandleCodeResponse("producer-0", resp))
	got, ok := cache.Get(hash)
	require.True(t, ok)
	assert.Equal(t, code, got)
	assert.Equal(t, 0, cache.Pending(key))
}

func TestHandleCodeResponseRejectsBadSignature(t *testing.T) {
	producers := staticProducers{ids: []string{"producer-0"}}
	rec := network.NewRecorder()
	signer := signing.Fake{ValidatorID: "validator-0"}
	verifier := signing.Fake{ValidatorID: "producer-0"}

	cache, err := New("validator-0", 16, producers, rec, signer, verifier)
	require.NoError(t, err)

	resp := wire.ContractCodeResponseMessage{
		Key:       wire.ProductionKey{EpochID: "e0", ShardID: 1, HeightCreated: 5},
		Codes:     [][]byte{[]byte("code")},
		Signature: []byte("forged"),
	}
	err = cache.HandleCodeResponse("producer-0", resp)
	assert.Error(t, err)
}
