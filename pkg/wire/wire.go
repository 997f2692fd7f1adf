// Package wire defines the message types exchanged between nodes for
// resharding hand-off and witness/deploy part distribution. Transport
// is out of scope; these are plain structs carried by network.Sender.
package wire

// ProductionKey identifies one chunk production instance: the epoch,
// the shard, and the height the chunk was created at.
type ProductionKey struct {
	EpochID       string `json:"epoch_id"`
	ShardID       uint64 `json:"shard_id"`
	HeightCreated uint64 `json:"height_created"`
}

// FlatStorageSplitShardRequest models the one-shot, in-process split
// hand-off. It carries no payload of its own: the resharder's
// Controller already holds the active event. The engine does not send
// this type; it dispatches the split task through
// schedulerbridge.Bridge.Dispatch.
type FlatStorageSplitShardRequest struct{}

// PartialWitnessPart is one Reed-Solomon-encoded shard of a chunk state
// witness (also reused as the Part of a contract-deploys message).
type PartialWitnessPart struct {
	Key           ProductionKey `json:"key"`
	PartOrd       int           `json:"part_ord"`
	Data          []byte        `json:"data"`
	EncodedLength int           `json:"encoded_length"`
	Signature     []byte        `json:"signature"`
}

// PartialEncodedStateWitnessMessage is the direct send from a chunk
// producer to one validator: the part at that validator's own index.
type PartialEncodedStateWitnessMessage struct {
	Part PartialWitnessPart `json:"part"`
}

// PartialEncodedStateWitnessForwardMessage is the owner-forward
// rebroadcast: issued exactly once per part, by the part's owner, to
// every other validator except the original chunk producer.
type PartialEncodedStateWitnessForwardMessage struct {
	Part PartialWitnessPart `json:"part"`
}

// ChunkStateWitnessAckMessage is sent back to the chunk producer the
// first time a validator successfully assembles a witness, letting the
// producer's tracker record RTT and fan-in completeness.
type ChunkStateWitnessAckMessage struct {
	ChunkHash string `json:"chunk_hash"`
}

// ChunkContractAccessesMessage lists the code hashes a chunk touched,
// so recipients can diff against their compiled-contract cache.
type ChunkContractAccessesMessage struct {
	Key        ProductionKey `json:"key"`
	CodeHashes []string      `json:"code_hashes"`
	Signature  []byte        `json:"signature"`
}

// PartialEncodedContractDeploysMessage carries one Reed-Solomon part of
// the contract-deploys payload for a production key, sent directly from
// the owner to the validator at that part's index.
type PartialEncodedContractDeploysMessage struct {
	Key       ProductionKey      `json:"key"`
	Part      PartialWitnessPart `json:"part"`
	Signature []byte             `json:"signature"`
}

// PartialEncodedContractDeploysForwardMessage is the owner-forward
// rebroadcast of a contract-deploys part: issued exactly once per part,
// by the part's owner, to every other validator except the originating
// producer. Mirrors PartialEncodedStateWitnessForwardMessage.
type PartialEncodedContractDeploysForwardMessage struct {
	Key       ProductionKey      `json:"key"`
	Part      PartialWitnessPart `json:"part"`
	Signature []byte             `json:"signature"`
}

// ContractCodeRequestMessage asks a pseudo-randomly selected chunk
// producer for the compiled code of the listed hashes.
type ContractCodeRequestMessage struct {
	Key         ProductionKey `json:"key"`
	CodeHashes  []string      `json:"code_hashes"`
	RequesterID string        `json:"requester_id"`
	Signature   []byte        `json:"signature"`
}

// ContractCodeResponseMessage answers a ContractCodeRequestMessage with
// the raw code bytes, in the same order as the hashes requested.
type ContractCodeResponseMessage struct {
	Key       ProductionKey `json:"key"`
	Codes     [][]byte      `json:"codes"`
	Signature []byte        `json:"signature"`
}
