package vectorstore

// Document represents a chunk to be stored in the vector store.
type Document struct {
	// ID is the unique identifier. Upserts with the same ID overwrite.
	ID string

	// Content is the chunk text.
	Content string

	// Vector is an optional precomputed embedding. When nil, the store
	// embeds Content itself.
	Vector []float32

	// Metadata contains key-value pairs for filtering. Common fields:
	// source_name, doc_id, chunk_index, category, importance, date.
	Metadata map[string]interface{}

	// Collection is the target collection name. Empty means the store's
	// default collection.
	Collection string
}

// SearchResult represents one similarity search hit.
type SearchResult struct {
	// ID is the document identifier.
	ID string

	// Content is the chunk text.
	Content string

	// Score is the similarity score (higher = more similar).
	Score float32

	// Metadata contains the stored document metadata.
	Metadata map[string]interface{}
}
