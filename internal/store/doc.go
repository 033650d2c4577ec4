// Package store persists the catalog, user photos, try-on sessions,
// subscriptions, click events and sync logs in SQLite.
//
// The Store owns the connection, applies the embedded migrations in order and
// exposes methods grouped by aggregate. Try-on sessions double as the durable
// work queue: workers claim PENDING rows atomically, heartbeat while
// processing, and stale PROCESSING rows are reclaimed to PENDING.
//
// Lookups that miss return (nil, nil); callers decide whether absence is an
// error. Timestamps are stored as fixed-width nanosecond UTC text so they
// compare correctly as strings.
package store
