// Package llm wraps an OpenAI-compatible chat completion API for transcript
// polishing, document cleanup, note fusion, and template-driven note
// generation.
package llm
