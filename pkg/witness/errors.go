package witness

import "errors"

var (
	// ErrAssemblyFailed marks a reassembly that could not RS-decode
	// even though it believed it had enough parts (corrupt/truncated
	// part). The assembly slot is dropped; the event is logged, not
	// forwarded.
	ErrAssemblyFailed = errors.New("witness: assembly failed to decode")

	// ErrInvalidPart marks a part that failed validation: bad
	// signature, wrong production key, out-of-range part_ord, or a
	// length exceeding encoded_length. The message is discarded
	// silently; no forward is issued.
	ErrInvalidPart = errors.New("witness: invalid part")

	// ErrNotAssignedValidator marks a part received by a node that is
	// not an assigned validator for its production key.
	ErrNotAssignedValidator = errors.New("witness: receiver is not an assigned validator")
)
