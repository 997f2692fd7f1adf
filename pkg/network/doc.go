// Package network models the out-of-scope transport boundary: a
// Sender capable of reliable per-peer unicast delivery of the typed
// wire messages exchanged by the resharding and witness pipelines.
// Real peer discovery, connection management and retry live outside
// this module; this package only defines the interface those
// collaborators satisfy, plus a registry-backed fake used in tests.
package network
