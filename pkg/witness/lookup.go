package witness

import "github.com/cuemby/flatshard/pkg/wire"

// ValidatorSetLookup resolves the ordered validator set assigned to a
// chunk production key. The part_ord a validator is sent directly
// corresponds to that validator's index in this order.
type ValidatorSetLookup interface {
	ValidatorsFor(key wire.ProductionKey) ([]string, error)
}

// StaticValidatorSet is a ValidatorSetLookup that always returns the
// same ordered list, for tests and for deployments with a fixed
// validator set per epoch resolved ahead of time.
type StaticValidatorSet struct {
	Validators []string
}

func (s StaticValidatorSet) ValidatorsFor(wire.ProductionKey) ([]string, error) {
	return s.Validators, nil
}

func indexOf(validators []string, id string) int {
	for i, v := range validators {
		if v == id {
			return i
		}
	}
	return -1
}
