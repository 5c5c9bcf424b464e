// Package recall provides an embedded Go client for the recall retrieval
// engine: embedding-based top-k search over per-tenant SQLite candidate
// stores, with per-tenant throttling and latency budgets.
//
//	client, _ := recall.New(ctx,
//	    recall.WithDBPath("/data/tenants.db"),
//	    recall.WithEmbedder(myEmbedder),
//	    recall.WithLatencyBudget(280),
//	)
//	defer client.Close()
//
//	results, _ := client.Search(ctx, recall.SearchParams{
//	    Slug:  "acme",
//	    Scope: "handbook",
//	    Query: "refund policy",
//	    K:     5,
//	})
//
// An optional Redis cache (WithRedis) stores query embeddings so repeated
// searches skip the provider round trip.
package recall
