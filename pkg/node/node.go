// Package node wires the flat storage resharder and the witness/deploys
// distribution pipelines into one long-running component, the way the
// teacher's manager package wires Raft, storage, and the event broker
// into a single cluster node.
package node

import (
	"context"
	"fmt"

	"github.com/cuemby/flatshard/pkg/chainlookup"
	"github.com/cuemby/flatshard/pkg/config"
	"github.com/cuemby/flatshard/pkg/contractcode"
	"github.com/cuemby/flatshard/pkg/deploys"
	"github.com/cuemby/flatshard/pkg/events"
	"github.com/cuemby/flatshard/pkg/flatstate"
	"github.com/cuemby/flatshard/pkg/flatstore"
	"github.com/cuemby/flatshard/pkg/log"
	"github.com/cuemby/flatshard/pkg/network"
	"github.com/cuemby/flatshard/pkg/resharding"
	"github.com/cuemby/flatshard/pkg/schedulerbridge"
	"github.com/cuemby/flatshard/pkg/signing"
	"github.com/cuemby/flatshard/pkg/trieroute"
	"github.com/cuemby/flatshard/pkg/wire"
	"github.com/cuemby/flatshard/pkg/witness"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config holds the node-identity and resource knobs that sit alongside
// the pipeline tuning in config.Config.
type Config struct {
	NodeID                string
	DataDir               string
	CompilationWorkers    int
	ContractCodeCacheSize int
}

// Deps are the collaborators a node cannot construct for itself:
// transport, signing, and the two validator/producer-set lookups. A
// real deployment supplies these from its own chain/network layer; a
// test supplies fakes.
type Deps struct {
	Chain           chainlookup.ChainReader
	Sender          network.Sender
	Signer          signing.Signer
	Verifier        signing.Verifier
	ValidatorLookup witness.ValidatorSetLookup
	ProducerLookup  contractcode.ProducerSetLookup
	Compiler        deploys.Compiler
	Runner          schedulerbridge.Runner
}

// Node bundles the split engine with the witness, deploys, and
// contract-code pipelines behind one set of constructor-time wiring.
type Node struct {
	cfg   Config
	store flatstore.Store

	controller *resharding.Controller
	engine     *resharding.Engine
	bridge     *schedulerbridge.Bridge

	broker *events.Broker

	witnessCache *witness.EncoderCache
	producer     *witness.Producer
	validator    *witness.Validator

	deploysCache    *witness.EncoderCache
	deploysProducer *deploys.Producer
	deploysPipeline *deploys.Pipeline
	compilationPool *deploys.CompilationPool

	contractCode *contractcode.Cache

	logger zerolog.Logger
}

// New opens the flat store under cfg.DataDir and wires every pipeline
// over it and over deps.
func New(cfg Config, pipelineCfg config.Config, deps Deps) (*Node, error) {
	store, err := flatstore.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("node: opening flat store: %w", err)
	}

	broker := events.NewBroker()
	broker.Start()

	controller := resharding.NewController()
	engine := resharding.New(store, controller, deps.Chain, resharding.Config{
		BatchSizeBytes: pipelineCfg.BatchSizeBytes,
		BatchDelay:     pipelineCfg.BatchDelay,
	})
	engine.OnOutcome = func(ev resharding.Event, result resharding.Result) {
		eventType := events.EventSplitFailed
		switch result.Outcome {
		case resharding.Successful:
			eventType = events.EventSplitSucceeded
		case resharding.Cancelled:
			eventType = events.EventSplitCancelled
		}
		broker.Publish(&events.Event{
			ID:      uuid.NewString(),
			Type:    eventType,
			Message: fmt.Sprintf("split of %s finished after %d batches", ev.ParentShard.String(), result.NumBatchesDone),
			Metadata: map[string]string{
				"parent_shard": ev.ParentShard.String(),
				"left_child":   ev.LeftChild.String(),
				"right_child":  ev.RightChild.String(),
			},
		})
	}

	bridge := schedulerbridge.New(deps.Runner)

	witnessCache := witness.NewEncoderCache(pipelineCfg.WitnessDataRatio, "witness")
	acks := witness.NewAckTracker()
	producer := witness.NewProducer(cfg.NodeID, witnessCache, deps.ValidatorLookup, deps.Sender, deps.Signer, acks)

	tracker := witness.NewTracker(witnessCache)
	validator := witness.NewValidator(cfg.NodeID, witnessCache, deps.ValidatorLookup, deps.Sender, deps.Verifier, tracker)
	validator.OnAssembled = func(key wire.ProductionKey, _ []byte) {
		broker.Publish(&events.Event{
			ID:      uuid.NewString(),
			Type:    events.EventWitnessAssembled,
			Message: fmt.Sprintf("witness assembled for shard %d height %d", key.ShardID, key.HeightCreated),
			Metadata: map[string]string{
				"epoch_id": key.EpochID,
			},
		})
	}

	deploysCache := witness.NewEncoderCache(pipelineCfg.DeploysDataRatio, "deploys")
	deploysProducer := deploys.NewProducer(cfg.NodeID, deploysCache, deps.ValidatorLookup, deps.Sender, deps.Signer)

	pool := deploys.NewCompilationPool(max(cfg.CompilationWorkers, 1))
	deploysTracker := witness.NewTracker(deploysCache)
	deploysPipeline := deploys.NewPipeline(cfg.NodeID, deploysCache, deps.ValidatorLookup, deps.Sender, deps.Verifier, deploysTracker, pool, deps.Compiler)

	contractCache, err := contractcode.New(cfg.NodeID, max(cfg.ContractCodeCacheSize, 1), deps.ProducerLookup, deps.Sender, deps.Signer, deps.Verifier)
	if err != nil {
		store.Close()
		broker.Stop()
		return nil, err
	}

	return &Node{
		cfg:             cfg,
		store:           store,
		controller:      controller,
		engine:          engine,
		bridge:          bridge,
		broker:          broker,
		witnessCache:    witnessCache,
		producer:        producer,
		validator:       validator,
		deploysCache:    deploysCache,
		deploysProducer: deploysProducer,
		deploysPipeline: deploysPipeline,
		compilationPool: pool,
		contractCode:    contractCache,
		logger:          log.WithComponent("node"),
	}, nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// StartSplit begins a resharding event.
func (n *Node) StartSplit(event resharding.Event) error {
	return n.engine.Start(event, n.bridge)
}

// CancelSplit requests cancellation of whatever split is in progress.
func (n *Node) CancelSplit() {
	n.controller.Cancel()
}

// Store returns the node's underlying flat store, for callers (such as
// a metrics collector) that need to sample shard status directly.
func (n *Node) Store() flatstore.Store {
	return n.store
}

// ResumeShard is called once per shard at startup with its persisted
// status, continuing an interrupted split if one was in progress.
func (n *Node) ResumeShard(shard flatstate.ShardUID, newLayout trieroute.ShardLayout) error {
	status, err := n.store.GetStatus(shard)
	if err != nil {
		return fmt.Errorf("node: reading status for %s: %w", shard.String(), err)
	}
	return n.engine.Resume(shard, status, newLayout, n.bridge)
}

// SendWitness encodes and distributes one chunk state witness.
func (n *Node) SendWitness(ctx context.Context, key wire.ProductionKey, chunkHash string, witnessPayload []byte) error {
	return n.producer.SendWitness(ctx, key, chunkHash, witnessPayload)
}

// HandleWitnessDirect processes a direct-send witness part.
func (n *Node) HandleWitnessDirect(ctx context.Context, msg wire.PartialEncodedStateWitnessMessage, chunkProducerID string) error {
	return n.validator.HandleDirect(ctx, msg, chunkProducerID)
}

// HandleWitnessForward processes an owner-forwarded witness part.
func (n *Node) HandleWitnessForward(ctx context.Context, msg wire.PartialEncodedStateWitnessForwardMessage, chunkProducerID string) error {
	return n.validator.HandleForward(ctx, msg, chunkProducerID)
}

// HandleWitnessAck records a validator's ack on the producer side.
func (n *Node) HandleWitnessAck(ack wire.ChunkStateWitnessAckMessage, validatorID string) {
	n.producer.HandleAck(ack, validatorID)
}

// SendDeploys encodes and distributes one contract-deploys batch.
func (n *Node) SendDeploys(ctx context.Context, key wire.ProductionKey, contracts [][]byte) error {
	return n.deploysProducer.SendDeploys(ctx, key, contracts)
}

// HandleDeployPart processes one direct-sent contract-deploys part.
func (n *Node) HandleDeployPart(ctx context.Context, msg wire.PartialEncodedContractDeploysMessage, producerID string) error {
	return n.deploysPipeline.HandleDirect(ctx, msg, producerID)
}

// HandleDeployForward processes an owner-forwarded contract-deploys part.
func (n *Node) HandleDeployForward(ctx context.Context, msg wire.PartialEncodedContractDeploysForwardMessage, producerID string) error {
	return n.deploysPipeline.HandleForward(ctx, msg, producerID)
}

// HandleChunkContractAccesses requests any code hashes missing from
// this node's compiled-contract cache.
func (n *Node) HandleChunkContractAccesses(ctx context.Context, msg wire.ChunkContractAccessesMessage) error {
	return n.contractCode.HandleChunkContractAccesses(ctx, msg)
}

// HandleContractCodeRequest answers a peer's code request.
func (n *Node) HandleContractCodeRequest(ctx context.Context, req wire.ContractCodeRequestMessage) error {
	return n.contractCode.HandleCodeRequest(ctx, req)
}

// HandleContractCodeResponse caches a peer's code response.
func (n *Node) HandleContractCodeResponse(responderID string, resp wire.ContractCodeResponseMessage) error {
	return n.contractCode.HandleCodeResponse(responderID, resp)
}

// Subscribe returns a channel of lifecycle events (split outcomes,
// witness assemblies), mirroring the teacher's event broker usage.
func (n *Node) Subscribe() events.Subscriber {
	return n.broker.Subscribe()
}

// Close releases the compilation pool, event broker, and flat store.
func (n *Node) Close() error {
	n.compilationPool.Stop()
	n.broker.Stop()
	return n.store.Close()
}
