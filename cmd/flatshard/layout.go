package main

import (
	"github.com/cuemby/flatshard/pkg/flatstate"
	"github.com/cuemby/flatshard/pkg/trieroute"
)

// registerDefaultAccountParsers installs the minimal account-id parsers
// the CLI ships with: the account id is whatever bytes follow the
// column tag. A deployment with a real key layout embeds this module
// directly and registers its own parsers instead of going through this
// CLI, the same way the split engine never hardcodes column semantics.
func registerDefaultAccountParsers() {
	parser := func(key []byte) (string, error) {
		return string(key[1:]), nil
	}
	trieroute.RegisterAccountParsers(map[byte]trieroute.AccountParser{
		trieroute.ColAccount:            parser,
		trieroute.ColContractData:       parser,
		trieroute.ColContractCode:       parser,
		trieroute.ColAccessKey:          parser,
		trieroute.ColReceivedData:       parser,
		trieroute.ColPostponedReceiptID: parser,
		trieroute.ColPendingDataCount:   parser,
		trieroute.ColPostponedReceipt:   parser,
	})
}

// boundaryLayout is a two-child ShardLayout: accounts sorting strictly
// before the boundary route left, everything else routes right. This
// mirrors nearcore's boundary-account representation of a shard split
// in its simplest (single-boundary) form.
type boundaryLayout struct {
	version  uint32
	boundary string
	left     uint64
	right    uint64
}

func (l boundaryLayout) ShardIDForAccount(accountID string) uint64 {
	if accountID < l.boundary {
		return l.left
	}
	return l.right
}

func (l boundaryLayout) ShardUID(shardID uint64) flatstate.ShardUID {
	return flatstate.ShardUID{LayoutVersion: l.version, ShardID: shardID}
}
