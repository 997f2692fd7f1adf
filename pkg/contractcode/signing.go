package contractcode

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/cuemby/flatshard/pkg/wire"
)

// contentHash derives a code's cache key from its bytes, so a response
// can be indexed and deduplicated without trusting the requester's
// claimed hash.
func contentHash(code []byte) string {
	sum := sha256.Sum256(code)
	return hex.EncodeToString(sum[:])
}

func keyBytes(key wire.ProductionKey) []byte {
	var buf []byte
	buf = append(buf, []byte(key.EpochID)...)
	var shardID, height [8]byte
	binary.LittleEndian.PutUint64(shardID[:], key.ShardID)
	binary.LittleEndian.PutUint64(height[:], key.HeightCreated)
	buf = append(buf, shardID[:]...)
	buf = append(buf, height[:]...)
	return buf
}

func requestSignaturePayload(req wire.ContractCodeRequestMessage) []byte {
	buf := keyBytes(req.Key)
	buf = append(buf, []byte(req.RequesterID)...)
	for _, h := range req.CodeHashes {
		buf = append(buf, []byte(h)...)
	}
	return buf
}

func responseSignaturePayload(resp wire.ContractCodeResponseMessage) []byte {
	buf := keyBytes(resp.Key)
	for _, code := range resp.Codes {
		buf = append(buf, code...)
	}
	return buf
}
