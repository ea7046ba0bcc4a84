// Package types defines the data model shared across the retrieval engine:
// graph nodes and edges, text chunks, transient candidates, the context
// bundle output contract, the intent-to-relation configuration, and the
// error taxonomy.
//
// Everything here is plain data. Behavior lives in the packages that consume
// it (pkg/retrieval, pkg/store, pkg/scorer).
package types
