package rag

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the pipeline. The HTTP layer maps them to
// status codes with errors.Is().
var (
	// ErrEmptyQuestion indicates a blank question after trimming.
	ErrEmptyQuestion = errors.New("question cannot be empty")

	// ErrRetrievalUnavailable indicates the vector store could not serve
	// the query.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")

	// ErrTemplateRender indicates prompt assembly failed.
	ErrTemplateRender = errors.New("prompt template rendering failed")

	// ErrGenerationFailed is the base error for an exhausted retry loop.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrEmptyAnswer means every attempt sanitized down to nothing.
	ErrEmptyAnswer = fmt.Errorf("%w: empty answer after all attempts", ErrGenerationFailed)

	// ErrLLMBackend means the final attempt failed at the LLM backend.
	ErrLLMBackend = fmt.Errorf("%w: LLM backend error", ErrGenerationFailed)
)
