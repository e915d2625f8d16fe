// Package transform defines the contract with the artifact transformation
// step and the built-in implementations. The transformer never deletes the
// only copy of its input: on every non-error return an artifact exists at
// Result.Path.
package transform

import "context"

// Processing types accepted by the transform step.
const (
	TypePreserve = "preserve"
	TypeOptimize = "optimize"
	TypeAuto     = "auto"
)

// Options controls how an artifact is transformed.
type Options struct {
	Type     string
	Quality  int
	Metadata map[string]string
}

// Result describes the outcome of one transform invocation. Success false
// with a nil error means the transform step declined or failed but the
// pipeline may continue with the preserved original.
type Result struct {
	Success        bool
	Path           string
	ProcessingType string
	OriginalSize   int64
	FinalSize      int64
	Reason         string
}

// Transformer turns a combined upload at srcPath into the final artifact at
// dstPath.
type Transformer interface {
	Transform(ctx context.Context, srcPath, dstPath string, opts Options) (*Result, error)
}
