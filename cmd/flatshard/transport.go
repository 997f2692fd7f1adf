package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/cuemby/flatshard/pkg/log"
)

// loggingSender stands in for real peer transport, which this module
// treats as an external boundary (see pkg/wire's doc comment). It logs
// what would have been sent instead of delivering it, so `serve` can
// exercise the full pipeline wiring without a network stack attached.
type loggingSender struct{}

func (loggingSender) Send(_ context.Context, peerID string, msg any) error {
	log.WithComponent("loopback-sender").Debug().
		Str("peer", peerID).
		Str("message_type", fmt.Sprintf("%T", msg)).
		Msg("would send message")
	return nil
}

// staticChainReader answers BlockHashesAscending from a fixed,
// operator-supplied list, standing in for the real chain-head tracker
// that pkg/chainlookup's doc comment says this module never implements.
type staticChainReader struct {
	hashes []string
}

// splitCSV splits a comma-separated flag value into trimmed, non-empty
// fields. Shared by every flag in this command that takes a list.
func splitCSV(csv string) []string {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c staticChainReader) BlockHashesAscending(_, _ string) ([]string, error) {
	return c.hashes, nil
}
