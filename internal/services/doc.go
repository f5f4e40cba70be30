// Package services defines shared utilities consumed by the workflow
// orchestrator and the external provider integrations.
//
// Key responsibilities:
//   - Context helpers that stamp task IDs, stage names, branch names, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that keep failure
//     classification (permanent vs transient) uniform across providers.
//   - A shared retry policy with exponential backoff used by every outbound
//     service call.
//   - Credential resolution that prefers runtime overrides persisted in the
//     store over static configuration.
//
// Use these helpers when wiring new provider logic so operational behaviour
// stays uniform across the pipeline.
package services
