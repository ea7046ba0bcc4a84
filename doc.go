// Package cerca provides a hybrid knowledge retrieval engine for Go.
//
// Cerca answers parsed natural-language queries over a technical manual
// corpus by retrieving supporting context from a hybrid store: a property
// graph of extracted entities and relations plus vector embeddings over the
// same nodes and their source text chunks. It reconciles keyword and vector
// anchor resolution, performs intent-aware bounded graph expansion, reranks
// the candidate pool under latency constraints, and assembles a
// deduplicated, size-bounded context bundle, degrading gracefully when any
// one retrieval path fails.
//
// # Basic Usage
//
// Create a client from its collaborators:
//
//	// Create the Neo4j-backed hybrid store
//	st, err := store.NewNeo4jStore(store.Neo4jConfig{
//		URI:      "bolt://localhost:7687",
//		Username: "neo4j",
//		Password: "password",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// Create embedder and scorer
//	embConfig := embedder.Config{Model: "text-embedding-3-small"}
//	embedderClient := embedder.NewOpenAIEmbedder("your-api-key", embConfig)
//	scorerClient := scorer.NewOpenAIScorer("your-api-key", scorer.Config{Model: "gpt-4o-mini"})
//
//	// Load the intent map and create the client
//	intents, err := config.LoadIntentRelationMap("config/intents.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	client, err := cerca.NewClient(cerca.ClientConfig{
//		Store:    st,
//		Embedder: embedderClient,
//		Scorer:   scorerClient,
//		Intents:  intents,
//	})
//
// # Retrieving Context
//
// A retrieval call takes the parsed query and returns a ranked bundle:
//
//	bundle, err := client.Retrieve(ctx, types.Query{
//		Text:           "Come posso creare una commissione di gara?",
//		EntityMentions: []string{"commissione di gara"},
//		Intent:         "find_procedure",
//	})
//	for _, item := range bundle.Items {
//		fmt.Println(item.Ref(), item.Score, item.Text())
//	}
//	if bundle.Degraded {
//		log.Printf("best-effort result: %v", bundle.DegradedReasons)
//	}
//
// The bundle is deduplicated, ordered by relevance, and bounded by the
// configured item and character budgets. When a sub-path fails (vector
// index down, scoring timeout), the bundle is marked degraded with
// machine-readable reasons instead of the call failing.
package cerca
