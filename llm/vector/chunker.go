package vector

import (
	"errors"
	"fmt"
	"iter"
)

const (
	// DefaultChunkSize is the window size in characters (runes)
	DefaultChunkSize = 1500
	// DefaultChunkOverlap is the number of characters shared by consecutive windows
	DefaultChunkOverlap = 100
)

// ErrInvalidChunkConfig is returned when size and overlap cannot produce forward progress
var ErrInvalidChunkConfig = errors.New("invalid chunk configuration")

// ChunkText splits text into overlapping fixed-size windows.
//
// Windows start at 0 and advance by size-overlap. The sequence ends with the
// first window that reaches the end of the text, so dropping the trailing
// overlap of every window but the last and concatenating the rest gives back
// the original text. Empty text yields no windows.
//
// The returned sequence is lazy and may be ranged over more than once.
func ChunkText(text string, size, overlap int) (iter.Seq[string], error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidChunkConfig, size, overlap)
	}

	runes := []rune(text)
	step := size - overlap

	return func(yield func(string) bool) {
		for i := 0; i < len(runes); i += step {
			end := min(i+size, len(runes))
			if !yield(string(runes[i:end])) {
				return
			}
			if end == len(runes) {
				return
			}
		}
	}, nil
}

// ChunkRecord splits one record into chunks that all carry the same metadata.
// The "text" key is never copied into chunk metadata.
func ChunkRecord(text string, metadata map[string]any, size, overlap int) ([]Chunk, error) {
	seq, err := ChunkText(text, size, overlap)
	if err != nil {
		return nil, err
	}

	meta := make(map[string]any, len(metadata))
	for k, v := range metadata {
		if k == "text" {
			continue
		}
		meta[k] = v
	}

	var chunks []Chunk
	for piece := range seq {
		chunks = append(chunks, Chunk{Text: piece, Metadata: meta})
	}
	return chunks, nil
}
