package types

import "errors"

// Validation errors
var (
	ErrEmptyID        = errors.New("id cannot be empty")
	ErrEmptyName      = errors.New("name cannot be empty")
	ErrEmptySource    = errors.New("source node id cannot be empty")
	ErrEmptyTarget    = errors.New("target node id cannot be empty")
	ErrEmptyText      = errors.New("text cannot be empty")
	ErrEmptyDocument  = errors.New("document reference cannot be empty")
	ErrInvalidLimit   = errors.New("limit must be positive")
	ErrNegativeHop    = errors.New("hop distance cannot be negative")
	ErrNoProvenance   = errors.New("candidate carries no provenance")
	ErrEmptyCandidate = errors.New("candidate must wrap a node, edge, or chunk")
)

// EntityType tags a graph node with its place in the configured entity
// vocabulary (e.g. "AzioneUtente", "DocumentoSistema").
type EntityType string

// RelationType tags a graph edge with its place in the configured relation
// vocabulary (e.g. "RICHIEDE", "HA_PASSO_SUCCESSIVO").
type RelationType string

// GraphNode is an entity extracted from the manual corpus. Nodes are owned
// by the store and immutable once ingested.
type GraphNode struct {
	ID          string     `json:"id" mapstructure:"id"`
	Type        EntityType `json:"type" mapstructure:"type"`
	Name        string     `json:"name" mapstructure:"name"`
	Description string     `json:"description,omitempty" mapstructure:"description"`

	// Embedding is present when the node was indexed for vector search.
	Embedding []float32 `json:"embedding,omitempty" mapstructure:"embedding"`

	// ChunkIDs link back to the source text chunks this node was
	// extracted from.
	ChunkIDs []string `json:"chunk_ids,omitempty" mapstructure:"chunk_ids"`

	// Provenance hints carried over from ingestion.
	Document string `json:"document,omitempty" mapstructure:"document"`
	Section  string `json:"section,omitempty" mapstructure:"section"`
}

// Validate checks if the GraphNode has all required fields set.
func (n *GraphNode) Validate() error {
	if n.ID == "" {
		return ErrEmptyID
	}
	if n.Name == "" {
		return ErrEmptyName
	}
	return nil
}

// GraphEdge is a directed, typed relation between two nodes. Multiple edges
// may exist between the same pair.
type GraphEdge struct {
	ID       string       `json:"id" mapstructure:"id"`
	Type     RelationType `json:"type" mapstructure:"type"`
	SourceID string       `json:"source_id" mapstructure:"source_id"`
	TargetID string       `json:"target_id" mapstructure:"target_id"`

	// Weight is the extraction confidence in (0,1]. Zero means unset.
	Weight float64 `json:"weight,omitempty" mapstructure:"weight"`
}

// Validate checks if the GraphEdge has all required fields set.
func (e *GraphEdge) Validate() error {
	if e.ID == "" {
		return ErrEmptyID
	}
	if e.SourceID == "" {
		return ErrEmptySource
	}
	if e.TargetID == "" {
		return ErrEmptyTarget
	}
	return nil
}

// TextChunk is a span of source text from one of the ingested manuals.
type TextChunk struct {
	ID         string `json:"chunk_id" mapstructure:"chunk_id"`
	Document   string `json:"document" mapstructure:"document"`
	Section    string `json:"section,omitempty" mapstructure:"section"`
	PageNumber int    `json:"page_number,omitempty" mapstructure:"page_number"`
	Text       string `json:"text" mapstructure:"text"`

	// NodeIDs link to the graph nodes extracted from this chunk.
	NodeIDs []string `json:"node_ids,omitempty" mapstructure:"node_ids"`
}

// Validate checks if the TextChunk has all required fields set.
func (c *TextChunk) Validate() error {
	if c.ID == "" {
		return ErrEmptyID
	}
	if c.Document == "" {
		return ErrEmptyDocument
	}
	if c.Text == "" {
		return ErrEmptyText
	}
	return nil
}

// Query is the input contract from the query-understanding collaborator.
type Query struct {
	Text           string   `json:"text"`
	EntityMentions []string `json:"entity_mentions,omitempty"`

	// Intent is one of the configured intent labels, or IntentUnknown.
	Intent string `json:"intent"`
}

// IntentUnknown is the intent label used when query understanding could not
// classify the question. No relation types are preferred during expansion.
const IntentUnknown = "unknown"
