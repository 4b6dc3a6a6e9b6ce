package embeddings

import (
	"fmt"
	"sync"
)

// Backend selects the embedder implementation at process startup. The bound
// implementation never changes per call.
type Backend string

const (
	BackendRemote Backend = "remote"
	BackendStub   Backend = "stub"
)

// Config describes how to construct the process-wide embedder.
type Config struct {
	Backend Backend
	BaseURL string
	APIKey  string
	Model   string
}

var (
	loadMu sync.Mutex
	shared Embedder
	cfg    Config
	set    bool
)

// Configure binds the backend configuration. Must be called before the first
// Shared; the instance itself is built lazily on first use.
func Configure(c Config) {
	loadMu.Lock()
	defer loadMu.Unlock()
	if c.Model == "" {
		c.Model = DefaultModel
	}
	cfg = c
	set = true
	shared = nil
}

// Shared returns the process-wide embedder, building it on first use. The
// load lock prevents duplicate concurrent construction. Returns
// ErrUnavailable when no backend can be initialized.
func Shared() (Embedder, error) {
	loadMu.Lock()
	defer loadMu.Unlock()

	if shared != nil {
		return shared, nil
	}
	if !set {
		return nil, fmt.Errorf("%w: not configured", ErrUnavailable)
	}

	switch cfg.Backend {
	case BackendStub:
		shared = NewStubEmbedder(ModelDimension(cfg.Model))
	case BackendRemote:
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("%w: remote backend needs a base URL", ErrUnavailable)
		}
		shared = NewCachedEmbedder(NewClient(cfg.BaseURL, cfg.APIKey, WithModel(cfg.Model)), cfg.Model)
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrUnavailable, cfg.Backend)
	}

	return shared, nil
}

// ResetForTest drops the shared instance and configuration.
func ResetForTest() {
	loadMu.Lock()
	defer loadMu.Unlock()
	shared = nil
	set = false
	cfg = Config{}
}
