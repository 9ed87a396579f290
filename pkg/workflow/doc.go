// Package workflow defines the types shared by the corpus, the classifier,
// the matcher and the ingestion pipeline.
//
// # Records
//
// A Record is one curated consulting workflow template. Records are produced
// by the ingestion pipeline and persisted in the corpus. The JSON encoding of
// Record is the checkpoint format written between pipeline stages
// (parsed.json, embedded.json).
//
// # Embeddings
//
// A record either has an embedding of exactly EmbeddingDimensions floats or
// it has none (nil). There is no zero-vector placeholder: records without an
// embedding are stored with a NULL vector and never returned by search.
//
// # Domains
//
// Domain is a closed set of seven business domains. DomainUnknown exists only
// to tag ingested records whose domain could not be determined so they can
// be triaged by hand.
package workflow
