package types

import (
	"fmt"
	"strings"
)

// RetrievalPath records which retrieval modality produced a candidate.
type RetrievalPath string

const (
	// PathKeyword marks candidates found by keyword/substring matching.
	PathKeyword RetrievalPath = "keyword"
	// PathVector marks candidates found by vector similarity search.
	PathVector RetrievalPath = "vector"
	// PathBoth marks anchors confirmed by both keyword and vector search.
	PathBoth RetrievalPath = "both"
	// PathTraversal marks candidates reached by graph expansion.
	PathTraversal RetrievalPath = "traversal"
)

// Candidate wraps exactly one of a graph node, a graph edge, or a text chunk
// collected during a single retrieval call. Candidates are transient: they
// exist only between collection and bundle assembly.
type Candidate struct {
	Node  *GraphNode `json:"node,omitempty"`
	Edge  *GraphEdge `json:"edge,omitempty"`
	Chunk *TextChunk `json:"chunk,omitempty"`

	// Path is the retrieval modality that produced this candidate.
	Path RetrievalPath `json:"path"`

	// Hop is the distance from the nearest anchor. Anchors and chunk
	// fallback results sit at hop 0.
	Hop int `json:"hop"`

	// Via lists the relation types walked from the anchor to reach this
	// candidate, in order. Empty for anchors and chunks.
	Via []string `json:"via,omitempty"`

	// PrelimScore is the pre-rerank score from the path that found the
	// candidate (match score, similarity, or edge weight).
	PrelimScore float64 `json:"prelim_score"`

	// Score is the final relevance score in [0,1]. It is meaningful only
	// once Scored is true or the reranker has passed the candidate
	// through on its scaled preliminary score.
	Score  float64 `json:"score"`
	Scored bool    `json:"scored"`

	// TruncatedText replaces the rendered text when bundle assembly had
	// to cut the item to fit the character budget. Empty otherwise.
	TruncatedText string `json:"truncated_text,omitempty"`
}

// Ref returns the id of the underlying node, edge, or chunk. Bundle
// deduplication keys on this value.
func (c *Candidate) Ref() string {
	switch {
	case c.Node != nil:
		return c.Node.ID
	case c.Edge != nil:
		return c.Edge.ID
	case c.Chunk != nil:
		return c.Chunk.ID
	}
	return ""
}

// Text renders the candidate for relevance scoring and for the assembled
// context bundle. The rendering is deterministic.
func (c *Candidate) Text() string {
	if c.TruncatedText != "" {
		return c.TruncatedText
	}
	switch {
	case c.Node != nil:
		if c.Node.Description == "" {
			return c.Node.Name
		}
		return fmt.Sprintf("%s: %s", c.Node.Name, c.Node.Description)
	case c.Edge != nil:
		return fmt.Sprintf("%s --[%s]--> %s", c.Edge.SourceID, c.Edge.Type, c.Edge.TargetID)
	case c.Chunk != nil:
		return c.Chunk.Text
	}
	return ""
}

// Provenance traces a candidate back to its document and section.
type Provenance struct {
	Ref      string `json:"ref"`
	Document string `json:"document,omitempty"`
	Section  string `json:"section,omitempty"`

	// Via repeats the relation path for traversal candidates so the
	// synthesis layer can explain how the item was reached.
	Via []string `json:"via,omitempty"`
}

// Provenance returns where the candidate traces to.
func (c *Candidate) Provenance() Provenance {
	p := Provenance{Ref: c.Ref(), Via: c.Via}
	switch {
	case c.Node != nil:
		p.Document = c.Node.Document
		p.Section = c.Node.Section
	case c.Chunk != nil:
		p.Document = c.Chunk.Document
		p.Section = c.Chunk.Section
	}
	return p
}

// Validate checks the candidate invariants: it wraps exactly one underlying
// object, has provenance, and a non-negative hop distance.
func (c *Candidate) Validate() error {
	count := 0
	if c.Node != nil {
		count++
	}
	if c.Edge != nil {
		count++
	}
	if c.Chunk != nil {
		count++
	}
	if count != 1 {
		return ErrEmptyCandidate
	}
	if c.Ref() == "" {
		return ErrNoProvenance
	}
	if c.Hop < 0 {
		return ErrNegativeHop
	}
	return nil
}

// String implements fmt.Stringer for log output.
func (c *Candidate) String() string {
	var b strings.Builder
	b.WriteString(string(c.Path))
	b.WriteString("/")
	b.WriteString(c.Ref())
	if c.Scored {
		fmt.Fprintf(&b, " score=%.3f", c.Score)
	}
	return b.String()
}
