package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig signals invalid parameters, fatal to the call.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrEmbeddingUnavailable signals an unreachable or failing embedding backend.
	ErrEmbeddingUnavailable = errors.New("embedding backend unavailable")
	// ErrGenerationFailed signals an unreachable or failing generation backend.
	ErrGenerationFailed = errors.New("generation failed")
	// ErrIndexIncompatible signals a vector dimension mismatch against the active index.
	ErrIndexIncompatible = errors.New("index incompatible")
	// ErrUnsupportedFormat signals a document format the loader cannot read.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrDocumentNotFound signals a missing document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrSessionNotFound signals a missing chat session.
	ErrSessionNotFound = errors.New("session not found")
)

// DimensionMismatchError wraps ErrIndexIncompatible with the conflicting dimensions.
// Recovery requires an index rebuild with a matching embedding model, never silent coercion.
type DimensionMismatchError struct {
	IndexDim  int
	VectorDim int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("%s: index dimension %d, vector dimension %d",
		ErrIndexIncompatible.Error(), e.IndexDim, e.VectorDim)
}

func (e *DimensionMismatchError) Unwrap() error { return ErrIndexIncompatible }

// NewDimensionMismatch creates a dimension mismatch error.
func NewDimensionMismatch(indexDim, vectorDim int) error {
	return &DimensionMismatchError{IndexDim: indexDim, VectorDim: vectorDim}
}
