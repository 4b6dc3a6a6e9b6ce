package nli

import (
	"fmt"
	"sync"
)

// Backend selects the scorer implementation at process startup.
type Backend string

const (
	BackendRemote  Backend = "remote"
	BackendLexical Backend = "lexical"
)

// Config describes how to construct the process-wide scorer.
type Config struct {
	Backend Backend
	BaseURL string
	Model   string
}

var (
	loadMu sync.Mutex
	shared Scorer
	cfg    Config
	set    bool
)

// Configure binds the backend configuration. The scorer itself is built
// lazily on first use and shared read-only across requests.
func Configure(c Config) {
	loadMu.Lock()
	defer loadMu.Unlock()
	cfg = c
	set = true
	shared = nil
}

// Shared returns the process-wide scorer, building it on first use under the
// load lock. Returns ErrScorerUnavailable when no backend can be
// initialized.
func Shared() (Scorer, error) {
	loadMu.Lock()
	defer loadMu.Unlock()

	if shared != nil {
		return shared, nil
	}
	if !set {
		return nil, fmt.Errorf("%w: not configured", ErrScorerUnavailable)
	}

	switch cfg.Backend {
	case BackendLexical:
		shared = NewLexicalScorer()
	case BackendRemote:
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("%w: remote backend needs a base URL", ErrScorerUnavailable)
		}
		shared = NewRemoteScorer(cfg.BaseURL, WithRemoteModel(cfg.Model))
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrScorerUnavailable, cfg.Backend)
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
