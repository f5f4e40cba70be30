// Package task persists note-processing tasks in SQLite and exposes helpers
// for driving their lifecycle.
//
// The Store manages database connections, schema initialization, stats
// queries, interrupted-task recovery, note templates, and runtime setting
// overrides. Mutations are field-group scoped: each write is a single UPDATE
// keyed by id, so the audio and attachment sub-pipelines can progress
// concurrently without clobbering each other's columns.
//
// The database is the single source of truth for task state; when you add new
// statuses or columns, update schema.sql and bump schemaVersion.
package task
