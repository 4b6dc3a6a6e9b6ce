package embeddings

import "errors"

// ErrUnavailable means no embedding backend could be loaded or reached.
// Retrieval must degrade observably (lexical fallback or an explicit empty
// similarity channel), never silently report "no contradictions".
var ErrUnavailable = errors.New("embedding backend unavailable")
