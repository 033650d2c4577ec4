// Package services defines shared utilities consumed by the try-on pipeline and
// the external integrations it calls.
//
// Key responsibilities:
//   - Context helpers that stamp try-on session IDs, stage names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so failures can be
//     classified (validation, quota, not found, external) into HTTP status
//     codes and persisted session error messages.
//
// Subpackages hold the HTTP clients for third-party APIs (apiclient, glm,
// kieai, gemini).
package services
