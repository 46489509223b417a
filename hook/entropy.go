package hook

import "crypto/rand"

// newEntropyReader returns the entropy source backing RequestID generation.
// Factored out so tests can substitute a deterministic reader.
func newEntropyReader() *randReader { return &randReader{} }

type randReader struct{}

func (randReader) Read(p []byte) (int, error) { return rand.Read(p) }
