// Package loader reads raw news documents from external sources.
package loader

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
)

var (
	// ErrSourceNotFound indicates the source file does not exist.
	ErrSourceNotFound = errors.New("source not found")

	// ErrInvalidFormat indicates the source is not valid JSON.
	ErrInvalidFormat = errors.New("invalid source format")
)

// RawDocument is one scraped news item as delivered by the fetchers.
// Either Text (the short channel message) or Detail (the full article
// fetched from the linked page) must be present.
type RawDocument struct {
	ID     int64  `json:"id"`
	Text   string `json:"text"`
	Detail string `json:"detail"`
	Date   string `json:"date"`
	URL    string `json:"url"`
}

// Content returns the best available body: the full article when fetched,
// otherwise the short message text.
func (d RawDocument) Content() string {
	if d.Detail != "" {
		return d.Detail
	}
	return d.Text
}

// HasDetail reports whether the full article body was fetched.
func (d RawDocument) HasDetail() bool { return d.Detail != "" }

// Empty reports whether the document carries no usable body.
func (d RawDocument) Empty() bool { return d.Text == "" && d.Detail == "" }

// Loader reads raw documents from a source path.
type Loader interface {
	Load(source string) ([]RawDocument, error)
}

// JSONFileLoader reads documents from a JSON file holding either an array
// of items or a single object. Items missing both text and detail are
// skipped rather than failing the load.
//
// StartIndex/EndIndex optionally slice the array before validation, for
// processing subsets of large exports. EndIndex zero means "to the end".
type JSONFileLoader struct {
	StartIndex int
	EndIndex   int

	logger *zap.Logger
}

// NewJSONFileLoader creates a loader for full files.
func NewJSONFileLoader(logger *zap.Logger) *JSONFileLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JSONFileLoader{logger: logger.Named("loader")}
}

// NewSlicingLoader creates a loader restricted to items [start, end).
func NewSlicingLoader(start, end int, logger *zap.Logger) *JSONFileLoader {
	l := NewJSONFileLoader(logger)
	l.StartIndex = start
	l.EndIndex = end
	return l
}

// Load reads and validates documents from the given file.
func (l *JSONFileLoader) Load(source string) ([]RawDocument, error) {
	data, err := os.ReadFile(source)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, source)
		}
		return nil, fmt.Errorf("reading %s: %w", source, err)
	}

	docs, err := decodeDocuments(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidFormat, source, err)
	}
	l.logger.Info("loaded source file",
		zap.String("source", source),
		zap.Int("items", len(docs)),
	)

	docs = l.slice(docs)

	valid := make([]RawDocument, 0, len(docs))
	skipped := 0
	for idx, doc := range docs {
		if doc.Empty() {
			l.logger.Warn("skipping item without text or detail", zap.Int("index", idx))
			skipped++
			continue
		}
		valid = append(valid, doc)
	}

	l.logger.Info("validated documents",
		zap.Int("valid", len(valid)),
		zap.Int("skipped", skipped),
	)
	return valid, nil
}

// decodeDocuments accepts either a JSON array or a single object.
func decodeDocuments(data []byte) ([]RawDocument, error) {
	var docs []RawDocument
	if err := json.Unmarshal(data, &docs); err == nil {
		return docs, nil
	}

	var single RawDocument
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, err
	}
	return []RawDocument{single}, nil
}

func (l *JSONFileLoader) slice(docs []RawDocument) []RawDocument {
	if l.StartIndex == 0 && l.EndIndex == 0 {
		return docs
	}

	start := l.StartIndex
	if start < 0 {
		start = 0
	}
	if start > len(docs) {
		start = len(docs)
	}
	end := l.EndIndex
	if end == 0 || end > len(docs) {
		end = len(docs)
	}
	if end < start {
		end = start
	}

	l.logger.Info("applied slicing",
		zap.Int("start", start),
		zap.Int("end", end),
		zap.Int("before", len(docs)),
		zap.Int("after", end-start),
	)
	return docs[start:end]
}

var _ Loader = (*JSONFileLoader)(nil)
