// Package embedding provides the text-embedding capability consumed by the
// similarity stores. Vectors are returned in input order.
package embedding

import (
	"context"
	"errors"
	"fmt"
)

// Embedder turns texts into vectors, one per input text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ErrCountMismatch is returned when a backend returns a different number of
// vectors than texts were sent.
var ErrCountMismatch = errors.New("embedding: vector count does not match input count")

// EmbedOne embeds a single text.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: got %d, want 1", ErrCountMismatch, len(vectors))
	}
	return vectors[0], nil
}

func checkCount(got, want int) error {
	if got != want {
		return fmt.Errorf("%w: got %d, want %d", ErrCountMismatch, got, want)
	}
	return nil
}
