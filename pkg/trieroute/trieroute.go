// Package trieroute classifies a flat-storage key by its first-byte
// column tag and decides which child shard(s) of a split should
// receive it. It performs no I/O: it is the single place where
// layout-boundary knowledge lives, so that the split engine never has
// to reason about column semantics itself.
package trieroute

import (
	"errors"
	"fmt"

	"github.com/cuemby/flatshard/pkg/flatstate"
)

// Column tags: the fixed single-byte prefixes of every flat-storage
// key. Implementers must reuse these exact values; Route is a total
// function over the tag space with a Fatal arm for anything else.
const (
	ColAccount                 = byte(0x00)
	ColContractData            = byte(0x01)
	ColContractCode            = byte(0x02)
	ColAccessKey               = byte(0x03)
	ColReceivedData            = byte(0x04)
	ColPostponedReceiptID      = byte(0x05)
	ColPendingDataCount        = byte(0x06)
	ColPostponedReceipt        = byte(0x07)
	ColDelayedReceiptOrIndices = byte(0x08)
	ColPromiseYieldIndices     = byte(0x09)
	ColPromiseYieldTimeout     = byte(0x0a)
	ColPromiseYieldReceipt     = byte(0x0b)
	ColBufferedReceiptIndices  = byte(0x0c)
	ColBufferedReceipt         = byte(0x0d)
)

// ErrEmptyKey is returned for a zero-length key, which is always an
// invariant violation (spec I3 / §4.4 "If key is empty: fatal").
var ErrEmptyKey = errors.New("trieroute: flat storage key is empty")

// ShardLayout maps an account id to the shard id that owns it under a
// specific layout generation. The resharder supplies the new layout so
// Route can decide the destination child.
type ShardLayout interface {
	ShardIDForAccount(accountID string) uint64
	ShardUID(shardID uint64) flatstate.ShardUID
}

// AccountParser extracts the account id embedded in a key of a given
// column. Each account-keyed column has its own key format and thus its
// own parser.
type AccountParser func(key []byte) (string, error)

// DecisionKind is the outcome of routing a single key.
type DecisionKind int

const (
	// ToChild routes the key to exactly one child, derived from its account id.
	ToChild DecisionKind = iota
	// ToBoth routes the key to both children verbatim.
	ToBoth
	// ToLeft routes the key to the left child only.
	ToLeft
	// Fatal marks an unroutable key: an unknown column tag.
	Fatal
)

// Decision is the result of routing a key.
type Decision struct {
	Kind  DecisionKind
	Child flatstate.ShardUID // populated when Kind == ToChild
}

// parsers maps each account-identified column to the parser that
// extracts its account id. Populated by RegisterAccountParsers so that
// callers can supply real key-layout-specific parsers without this
// package needing to know their formats.
var parsers = map[byte]AccountParser{}

// RegisterAccountParsers installs the account-id parser for each
// account-identified column. Must be called once during process
// startup before Route is used on those columns.
func RegisterAccountParsers(byColumn map[byte]AccountParser) {
	for col, p := range byColumn {
		parsers[col] = p
	}
}

// Route classifies key by its first byte (column tag) and decides
// which child(ren) of layout should receive it.
func Route(key []byte, layout ShardLayout) (Decision, error) {
	if len(key) == 0 {
		return Decision{}, ErrEmptyKey
	}

	switch key[0] {
	case ColAccount, ColContractData, ColContractCode, ColAccessKey,
		ColReceivedData, ColPostponedReceiptID, ColPendingDataCount, ColPostponedReceipt:
		parser, ok := parsers[key[0]]
		if !ok {
			return Decision{}, fmt.Errorf("trieroute: no account parser registered for column 0x%02x", key[0])
		}
		accountID, err := parser(key)
		if err != nil {
			return Decision{}, fmt.Errorf("trieroute: parsing account id from key: %w", err)
		}
		shardID := layout.ShardIDForAccount(accountID)
		return Decision{Kind: ToChild, Child: layout.ShardUID(shardID)}, nil

	case ColDelayedReceiptOrIndices, ColPromiseYieldIndices, ColPromiseYieldTimeout, ColPromiseYieldReceipt:
		return Decision{Kind: ToBoth}, nil

	case ColBufferedReceiptIndices, ColBufferedReceipt:
		return Decision{Kind: ToLeft}, nil

	default:
		return Decision{Kind: Fatal}, nil
	}
}
