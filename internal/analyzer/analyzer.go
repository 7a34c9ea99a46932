// Package analyzer derives structured metadata from full news articles.
//
// A document is analyzed exactly once, before chunking; every chunk cut from
// it carries the same analysis record. Analysis is an LLM call and therefore
// the expensive step of the pipeline, so the package offers three
// interchangeable strategies behind one interface: a concurrent client with
// retry and backoff for batch runs, a single-attempt sequential client for
// small batches and debugging, and a disabled strategy that skips the
// external call entirely.
package analyzer

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrAnalysisFailed indicates the external analysis call failed after
	// exhausting retries or returned an unparseable structure.
	ErrAnalysisFailed = errors.New("content analysis failed")

	// ErrInvalidConfig indicates invalid analyzer configuration.
	ErrInvalidConfig = errors.New("invalid analyzer configuration")

	// ErrEmptyContent indicates the document text was empty.
	ErrEmptyContent = errors.New("content cannot be empty")
)

// Mode selects the analysis strategy.
type Mode string

const (
	// ModeConcurrent analyzes with retry and backoff; intended to be invoked
	// from many goroutines behind the batch service's admission gate.
	ModeConcurrent Mode = "concurrent"

	// ModeSequential analyzes with a single blocking attempt per document.
	ModeSequential Mode = "sequential"

	// ModeDisabled skips analysis entirely.
	ModeDisabled Mode = "disabled"
)

// Valid reports whether m is a recognized mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeConcurrent, ModeSequential, ModeDisabled:
		return true
	}
	return false
}

// Result is the metadata derived from one document. Produced at most once
// per document and shared by every chunk cut from it.
type Result struct {
	Category          string   `json:"category"`
	Sentiment         string   `json:"sentiment"`
	SentimentScore    float64  `json:"sentiment_score"`
	Importance        int      `json:"importance"`
	GeographicScope   string   `json:"geographic_scope"`
	TemporalRelevance string   `json:"temporal_relevance"`
	Topics            []string `json:"topics"`
	Entities          []string `json:"entities"`
	Keywords          []string `json:"keywords"`
	Summary           string   `json:"summary"`

	// EntityCount is derived from Entities at parse time.
	EntityCount int `json:"entity_count"`

	// Exists distinguishes an analyzed document from one processed with
	// analysis disabled.
	Exists bool `json:"analysis_exists"`
}

// Analyzer derives metadata from a full document text.
type Analyzer interface {
	// Analyze returns the metadata record for the given document text.
	// Failures surface as errors wrapping ErrAnalysisFailed; the caller
	// decides whether that fails the document or the batch.
	Analyze(ctx context.Context, text string) (Result, error)
}

// Disabled is the no-op strategy: no external call, empty metadata with
// Exists=false, never fails.
type Disabled struct{}

// NewDisabled returns the disabled analysis strategy.
func NewDisabled() *Disabled { return &Disabled{} }

// Analyze returns an empty result without any external call.
func (*Disabled) Analyze(_ context.Context, _ string) (Result, error) {
	return Result{Exists: false}, nil
}

// New creates the analyzer for the given mode.
//
// ModeDisabled needs no client configuration. The other modes share the
// OpenAI-backed implementation; sequential mode makes a single attempt per
// document while concurrent mode retries transient failures with backoff.
func New(mode Mode, cfg ClientConfig) (Analyzer, error) {
	switch mode {
	case ModeDisabled:
		return NewDisabled(), nil
	case ModeSequential:
		cfg.MaxRetries = 0
		return NewOpenAIAnalyzer(cfg)
	case ModeConcurrent:
		if cfg.MaxRetries == 0 {
			cfg.MaxRetries = DefaultMaxRetries
		}
		return NewOpenAIAnalyzer(cfg)
	default:
		return nil, fmt.Errorf("%w: unrecognized mode %q (supported: concurrent, sequential, disabled)", ErrInvalidConfig, mode)
	}
}

var _ Analyzer = (*Disabled)(nil)
