package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/soundprediction/cerca/pkg/types"
)

// Index names created by the ingestion pipeline. The engine only reads them.
const (
	nodeVectorIndex  = "node_embeddings"
	chunkVectorIndex = "chunk_embeddings"
)

// Neo4jStore implements Store against a Neo4j database populated by the
// offline ingestion pipeline.
type Neo4jStore struct {
	client   neo4j.DriverWithContext
	database string
}

// Neo4jConfig holds connection settings for the Neo4j adapter.
type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	Database string
}

// NewNeo4jStore creates a Neo4j-backed store adapter.
func NewNeo4jStore(cfg Neo4jConfig) (*Neo4jStore, error) {
	client, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	database := cfg.Database
	if database == "" {
		database = "neo4j"
	}

	return &Neo4jStore{
		client:   client,
		database: database,
	}, nil
}

// KeywordMatch finds nodes whose name or description contains any of the
// given terms, case-insensitively.
func (s *Neo4jStore) KeywordMatch(ctx context.Context, terms []string, limit int) ([]*types.GraphNode, error) {
	lowered := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			lowered = append(lowered, t)
		}
	}
	if len(lowered) == 0 || limit <= 0 {
		return []*types.GraphNode{}, nil
	}

	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			UNWIND $terms AS term
			MATCH (n:Entity)
			WHERE toLower(n.name) CONTAINS term OR toLower(n.description) CONTAINS term
			RETURN DISTINCT n
			ORDER BY n.id
			LIMIT $limit
		`
		res, err := tx.Run(ctx, query, map[string]any{
			"terms": lowered,
			"limit": limit,
		})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, classify("keyword_match", err)
	}

	records := result.([]*db.Record)
	nodes := make([]*types.GraphNode, 0, len(records))
	for _, record := range records {
		value, found := record.Get("n")
		if !found {
			continue
		}
		dbNode, ok := value.(dbtype.Node)
		if !ok {
			continue
		}
		nodes = append(nodes, nodeFromProps(dbNode.Props))
	}
	return nodes, nil
}

// VectorSearch runs nearest-neighbor search against the node embedding
// index and filters by the similarity floor.
func (s *Neo4jStore) VectorSearch(ctx context.Context, embedding []float32, k int, minSimilarity float64) ([]NodeSimilarity, error) {
	if len(embedding) == 0 || k <= 0 {
		return []NodeSimilarity{}, nil
	}

	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			CALL db.index.vector.queryNodes($index, $k, $embedding)
			YIELD node, score
			WHERE score >= $minScore
			RETURN node, score
			ORDER BY score DESC, node.id
		`
		res, err := tx.Run(ctx, query, map[string]any{
			"index":     nodeVectorIndex,
			"k":         k,
			"embedding": toFloat64s(embedding),
			"minScore":  minSimilarity,
		})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, classify("vector_search", err)
	}

	records := result.([]*db.Record)
	out := make([]NodeSimilarity, 0, len(records))
	for _, record := range records {
		value, found := record.Get("node")
		if !found {
			continue
		}
		dbNode, ok := value.(dbtype.Node)
		if !ok {
			continue
		}
		score, _ := record.Get("score")
		sim, _ := score.(float64)
		out = append(out, NodeSimilarity{Node: nodeFromProps(dbNode.Props), Similarity: sim})
	}
	return out, nil
}

// ChunkVectorSearch runs nearest-neighbor search against the chunk
// embedding index.
func (s *Neo4jStore) ChunkVectorSearch(ctx context.Context, embedding []float32, k int, minSimilarity float64) ([]ChunkSimilarity, error) {
	if len(embedding) == 0 || k <= 0 {
		return []ChunkSimilarity{}, nil
	}

	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			CALL db.index.vector.queryNodes($index, $k, $embedding)
			YIELD node, score
			WHERE score >= $minScore
			RETURN node, score
			ORDER BY score DESC, node.chunk_id
		`
		res, err := tx.Run(ctx, query, map[string]any{
			"index":     chunkVectorIndex,
			"k":         k,
			"embedding": toFloat64s(embedding),
			"minScore":  minSimilarity,
		})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, classify("chunk_vector_search", err)
	}

	records := result.([]*db.Record)
	out := make([]ChunkSimilarity, 0, len(records))
	for _, record := range records {
		value, found := record.Get("node")
		if !found {
			continue
		}
		dbNode, ok := value.(dbtype.Node)
		if !ok {
			continue
		}
		score, _ := record.Get("score")
		sim, _ := score.(float64)
		out = append(out, ChunkSimilarity{Chunk: chunkFromProps(dbNode.Props), Similarity: sim})
	}
	return out, nil
}

// Neighbors returns outgoing edges and their target nodes, optionally
// restricted to the given relation types.
func (s *Neo4jStore) Neighbors(ctx context.Context, nodeID string, relationTypes []types.RelationType, limit int) ([]NeighborEntry, error) {
	if nodeID == "" || limit <= 0 {
		return []NeighborEntry{}, nil
	}

	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (n:Entity {id: $nodeID})-[r]->(m:Entity)
			WHERE size($relTypes) = 0 OR type(r) IN $relTypes
			RETURN r, type(r) AS rel_type, m
			ORDER BY coalesce(r.weight, 0.0) DESC, r.id
			LIMIT $limit
		`
		relTypes := make([]string, len(relationTypes))
		for i, rt := range relationTypes {
			relTypes[i] = string(rt)
		}
		res, err := tx.Run(ctx, query, map[string]any{
			"nodeID":   nodeID,
			"relTypes": relTypes,
			"limit":    limit,
		})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, classify("neighbors", err)
	}

	records := result.([]*db.Record)
	out := make([]NeighborEntry, 0, len(records))
	for _, record := range records {
		relValue, foundRel := record.Get("r")
		nodeValue, foundNode := record.Get("m")
		if !foundRel || !foundNode {
			continue
		}
		rel, okRel := relValue.(dbtype.Relationship)
		dbNode, okNode := nodeValue.(dbtype.Node)
		if !okRel || !okNode {
			continue
		}
		relType, _ := record.Get("rel_type")
		typeName, _ := relType.(string)

		edge := edgeFromProps(rel.Props)
		edge.Type = types.RelationType(typeName)
		edge.SourceID = nodeID
		target := nodeFromProps(dbNode.Props)
		edge.TargetID = target.ID

		out = append(out, NeighborEntry{Edge: edge, Node: target})
	}
	return out, nil
}

// Close shuts down the underlying driver.
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

// classify wraps driver errors, marking connectivity and timeout failures as
// transient so call sites can retry and degrade.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if neo4j.IsConnectivityError(err) || errors.Is(err, context.DeadlineExceeded) {
		return &types.TransientStoreError{Op: op, Err: err}
	}
	var neoErr *db.Neo4jError
	if errors.As(err, &neoErr) && neoErr.IsRetriable() {
		return &types.TransientStoreError{Op: op, Err: err}
	}
	return fmt.Errorf("%s failed: %w", op, err)
}

func nodeFromProps(props map[string]any) *types.GraphNode {
	node := &types.GraphNode{
		ID:          stringProp(props, "id"),
		Type:        types.EntityType(stringProp(props, "type")),
		Name:        stringProp(props, "name"),
		Description: stringProp(props, "description"),
		Document:    stringProp(props, "document"),
		Section:     stringProp(props, "section"),
	}
	if chunkIDs := props["chunk_ids"]; chunkIDs != nil {
		node.ChunkIDs = toStrings(chunkIDs)
	}
	if embedding := props["embedding"]; embedding != nil {
		node.Embedding = toFloat32s(embedding)
	}
	return node
}

func chunkFromProps(props map[string]any) *types.TextChunk {
	chunk := &types.TextChunk{
		ID:       stringProp(props, "chunk_id"),
		Document: stringProp(props, "document"),
		Section:  stringProp(props, "section"),
		Text:     stringProp(props, "text"),
	}
	if page, ok := props["page_number"].(int64); ok {
		chunk.PageNumber = int(page)
	}
	if nodeIDs := props["node_ids"]; nodeIDs != nil {
		chunk.NodeIDs = toStrings(nodeIDs)
	}
	return chunk
}

func edgeFromProps(props map[string]any) *types.GraphEdge {
	edge := &types.GraphEdge{
		ID: stringProp(props, "id"),
	}
	if weight, ok := props["weight"].(float64); ok {
		edge.Weight = weight
	}
	return edge
}

func stringProp(props map[string]any, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}

func toStrings(v any) []string {
	switch val := v.(type) {
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func toFloat32s(v any) []float32 {
	switch val := v.(type) {
	case []float32:
		return val
	case []float64:
		out := make([]float32, len(val))
		for i, f := range val {
			out[i] = float32(f)
		}
		return out
	case []any:
		out := make([]float32, 0, len(val))
		for _, item := range val {
			switch f := item.(type) {
			case float64:
				out = append(out, float32(f))
			case float32:
				out = append(out, f)
			}
		}
		return out
	}
	return nil
}

func toFloat64s(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}
