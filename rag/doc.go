// Copyright (c) GraphRAG Authors.
// Licensed under the MIT License.

/*
Package rag implements the retrieval-and-chunking core of the knowledge engine.

# Overview

The package covers the request path from raw document text to an answer with
citations: boundary-aware chunking into token-bounded passages, multi-strategy
retrieval over passages, entities and relations, deterministic context
assembly, and answer generation with tagged outcome status. Storage, embedding
and language-model inference are consumed through narrow gateway interfaces
and are never implemented here.

# Core interfaces/types

  - Chunker: splits normalized text into overlap-aware passages (Chunk)
  - Tokenizer: token counting for sizing decisions (heuristic or tiktoken)
  - Retriever: five retrieval modes (naive, local, global, hybrid, mix)
  - Store = VectorSearcher + Lookup: the storage gateway contract
  - Embedder: query embedding gateway
  - Generator: language-model gateway
  - Engine: retrieve, assemble and generate orchestration (Ask)
  - UsageRecorder: optional async usage side-channel

# Capabilities

  - Chunking: paragraph/sentence boundary splitting with sliding overlap,
    character-based token estimation, citation-grade offsets
  - Retrieval: vector search fused with entity/relation graph provenance,
    per-mode concurrency with cancellation, max-score dedup merging
  - Context assembly: entities, relations, then ranked passages with
    "Source N" labels, pure function of its inputs
  - Generation: tagged NoEvidence / Generated / GenerationFailed outcomes,
    source metadata with parent-document resolution
*/
package rag
