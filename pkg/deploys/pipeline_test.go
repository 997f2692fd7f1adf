package deploys

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/flatshard/pkg/network"
	"github.com/cuemby/flatshard/pkg/signing"
	"github.com/cuemby/flatshard/pkg/wire"
	"github.com/cuemby/flatshard/pkg/witness"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// channelCompiler hands each Precompile call to a test over a channel,
// so tests can assert on exactly what was compiled without racing a
// shared variable against the pool's own goroutines.
type channelCompiler struct {
	calls chan [][]byte
	fail  bool
}

func (c *channelCompiler) Precompile(_ context.Context, _ string, contracts [][]byte) error {
	c.calls <- contracts
	if c.fail {
		return assert.AnError
	}
	return nil
}

func TestPipelineAssemblesAndPrecompilesOnFullFanIn(t *testing.T) {
	const producerID = "producer-0"
	validatorIDs := []string{"v0", "v1", "v2"}
	lookup := witness.StaticValidatorSet{Validators: validatorIDs}
	cache := witness.NewEncoderCache(1.0, "test")
	signer := signing.Fake{ValidatorID: producerID}

	contracts := [][]byte{[]byte("contract-a"), []byte("contract-b")}
	payload, err := encodeBatch(contracts)
	require.NoError(t, err)

	key := wire.ProductionKey{EpochID: "e7", ShardID: 3, HeightCreated: 9}
	parts, encodedLength, err := witness.Encode(cache, payload, len(validatorIDs))
	require.NoError(t, err)

	compiler := &channelCompiler{calls: make(chan [][]byte, 1)}
	pool := NewCompilationPool(1)
	defer pool.Stop()
	tracker := witness.NewTracker(cache)
	rec := network.NewRecorder()
	// Single shared Pipeline standing in for validator "v0": every part
	// is addressed to this pipeline regardless of PartOrd, so this test
	// exercises assembly and compilation without the forward hop.
	pipeline := NewPipeline("v0", cache, lookup, rec, signer, tracker, pool, compiler)

	ctx := context.Background()
	for i, shard := range parts {
		part := wire.PartialWitnessPart{Key: key, PartOrd: i, Data: shard, EncodedLength: encodedLength}
		sig, err := signer.Sign(partSignaturePayload(key, part))
		require.NoError(t, err)
		msg := wire.PartialEncodedContractDeploysMessage{Key: key, Part: part, Signature: sig}
		require.NoError(t, pipeline.HandleDirect(ctx, msg, producerID))
	}

	select {
	case got := <-compiler.calls:
		assert.Equal(t, contracts, got)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for precompilation job")
	}
}

func TestPipelineRejectsBadSignature(t *testing.T) {
	validatorIDs := []string{"v0", "v1"}
	lookup := witness.StaticValidatorSet{Validators: validatorIDs}
	cache := witness.NewEncoderCache(1.0, "test")
	tracker := witness.NewTracker(cache)
	pool := NewCompilationPool(1)
	defer pool.Stop()
	compiler := &channelCompiler{calls: make(chan [][]byte, 1)}
	verifier := signing.Fake{ValidatorID: "producer-0"}
	rec := network.NewRecorder()
	pipeline := NewPipeline("v0", cache, lookup, rec, verifier, tracker, pool, compiler)

	part := wire.PartialWitnessPart{
		Key:           wire.ProductionKey{EpochID: "e1", ShardID: 1, HeightCreated: 1},
		PartOrd:       0,
		Data:          []byte("garbage"),
		EncodedLength: 100,
		Signature:     []byte("not-a-real-signature"),
	}
	msg := wire.PartialEncodedContractDeploysMessage{Key: part.Key, Part: part, Signature: part.Signature}
	err := pipeline.HandleDirect(context.Background(), msg, "producer-0")
	assert.ErrorIs(t, err, witness.ErrInvalidPart)
}

// deployRouter dispatches each Recorder inbox entry to a validator's own
// HandleDirect/HandleForward, modeling the full network hop so a single
// test can drive the multi-validator fan-out end to end, the same way
// pkg/witness's router test does for the witness pipeline.
type deployRouter struct {
	producerID string
	rec        *network.Recorder
	pipelines  map[string]*Pipeline
}

func (r *deployRouter) deliverAll(ctx context.Context, t *testing.T) {
	t.Helper()
	for {
		progressed := false
		for id, p := range r.pipelines {
			inbox := r.rec.Inbox(id)
			for _, raw := range inbox {
				switch msg := raw.(type) {
				case wire.PartialEncodedContractDeploysMessage:
					require.NoError(t, p.HandleDirect(ctx, msg, r.producerID))
					progressed = true
				case wire.PartialEncodedContractDeploysForwardMessage:
					require.NoError(t, p.HandleForward(ctx, msg, r.producerID))
					progressed = true
				}
			}
			r.rec.Clear(id)
		}
		if !progressed {
			return
		}
	}
}

// TestDeploysFanOutReachesEveryValidatorExactlyOnce mirrors
// pkg/witness's TestWitnessFanOutReachesEveryValidatorExactlyOnce: each
// validator runs its own Pipeline instance, and only the direct-send
// owner forwards, but every validator ends up with the part set
// assembled and precompiled exactly once.
func TestDeploysFanOutReachesEveryValidatorExactlyOnce(t *testing.T) {
	const producerID = "producer-0"
	validatorIDs := []string{"v0", "v1", "v2", "v3", "v4"}
	lookup := witness.StaticValidatorSet{Validators: validatorIDs}
	cache := witness.NewEncoderCache(0.6, "test")
	rec := network.NewRecorder()
	signer := signing.Fake{ValidatorID: producerID}
	producer := NewProducer(producerID, cache, lookup, rec, signer)

	pipelines := make(map[string]*Pipeline, len(validatorIDs))
	compilers := make(map[string]*channelCompiler, len(validatorIDs))
	pools := make(map[string]*CompilationPool, len(validatorIDs))
	for _, id := range validatorIDs {
		tracker := witness.NewTracker(cache)
		compiler := &channelCompiler{calls: make(chan [][]byte, 1)}
		pool := NewCompilationPool(1)
		pipelines[id] = NewPipeline(id, cache, lookup, rec, signer, tracker, pool, compiler)
		compilers[id] = compiler
		pools[id] = pool
	}
	defer func() {
		for _, pool := range pools {
			pool.Stop()
		}
	}()

	key := wire.ProductionKey{EpochID: "e9", ShardID: 4, HeightCreated: 12}
	contracts := [][]byte{[]byte("contract-x"), []byte("contract-y")}

	ctx := context.Background()
	require.NoError(t, producer.SendDeploys(ctx, key, contracts))

	router := &deployRouter{producerID: producerID, rec: rec, pipelines: pipelines}
	router.deliverAll(ctx, t)

	for _, id := range validatorIDs {
		select {
		case got := <-compilers[id].calls:
			assert.Equalf(t, contracts, got, "validator %s should precompile the assembled batch", id)
		case <-time.After(time.Second):
			t.Fatalf("validator %s never reassembled and precompiled the batch", id)
		}
	}
}
