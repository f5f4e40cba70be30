// Package workflow orchestrates the note-processing pipeline for individual
// tasks.
//
// Each task runs through source-type specific stages: text tasks are polished
// directly, document tasks are parsed then polished, and media tasks run an
// audio sub-pipeline (extract, transcribe, polish) concurrently with an
// optional attachment sub-pipeline. Audio failures are fatal; attachment
// failures degrade the final note with a warning instead of failing the task.
//
// Concurrency is bounded by two injected gates: a transcode gate for local
// ffmpeg work and an API gate for outbound service calls. A per-task
// single-flight guard rejects duplicate runs while one is in flight.
package workflow
