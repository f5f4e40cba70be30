// Package asr talks to an OpenAI-compatible speech-to-text endpoint to turn
// extracted audio into raw transcripts.
package asr
