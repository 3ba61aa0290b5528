package models

import "errors"

// Document-fatal failures.
var (
	ErrExtraction = errors.New("extraction failed")
	ErrEmbedding  = errors.New("embedding failed")
	ErrRetrieval  = errors.New("retrieval failed")
)

// Contained failures: they degrade a single sentence or the annotation step.
var (
	ErrRateLimited        = errors.New("classification rate limited")
	ErrClassification     = errors.New("classification failed")
	ErrHighlightNotFound  = errors.New("sentence not found on page")
	ErrHighlightFatal     = errors.New("annotation failed")
	ErrNoReferenceCorpus  = errors.New("reference corpus is empty")
	ErrUnparseableVerdict = errors.New("response does not start with an answer token")
)
