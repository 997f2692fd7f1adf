package deploys

import (
	"encoding/json"
	"fmt"
)

// encodeBatch serializes a batch of contract code blobs into the single
// payload that gets compressed and Reed-Solomon split. JSON keeps this
// symmetric with the rest of the module's on-disk encoding (flat store
// values are JSON too) instead of inventing a length-prefixed framing.
func encodeBatch(contracts [][]byte) ([]byte, error) {
	out, err := json.Marshal(contracts)
	if err != nil {
		return nil, fmt.Errorf("deploys: encoding contract batch: %w", err)
	}
	return out, nil
}

// decodeBatch is encodeBatch's inverse, run after reassembly.
func decodeBatch(payload []byte) ([][]byte, error) {
	var contracts [][]byte
	if err := json.Unmarshal(payload, &contracts); err != nil {
		return nil, fmt.Errorf("deploys: decoding contract batch: %w", err)
	}
	return contracts, nil
}
