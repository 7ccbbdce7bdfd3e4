// Package completion is the boundary to the external language-model
// completion provider.
//
// The agent core consumes a single blocking operation: Complete takes a
// structured prompt (system block, task block, transcript) and returns the
// model's raw text. Everything provider-specific lives behind the Provider
// interface: the gollm-backed implementation, the error taxonomy used to
// classify provider failures, and the retry policy with exponential
// backoff.
//
// Streaming is deliberately absent: the orchestration loop decodes one
// complete response per step.
package completion
