package deploys

import "context"

// Compiler precompiles a batch of contract code blobs belonging to the
// same epoch. A non-nil error is logged and counted but never fails the
// pipeline: a contract that fails to precompile is simply recompiled
// on demand the first time it executes.
type Compiler interface {
	Precompile(ctx context.Context, epochID string, contracts [][]byte) error
}

// CompilerFunc adapts a plain function to Compiler.
type CompilerFunc func(ctx context.Context, epochID string, contracts [][]byte) error

func (f CompilerFunc) Precompile(ctx context.Context, epochID string, contracts [][]byte) error {
	return f(ctx, epochID, contracts)
}
