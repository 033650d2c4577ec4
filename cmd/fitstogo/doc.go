// Command fitstogo is the operator CLI for the fitstogo backend.
//
// It works directly against the configured database and services rather than
// talking to a running daemon: catalog imports, affiliate syncs, try-on queue
// inspection and retries all take effect immediately and are picked up by
// daemon workers on their next poll. `fitstogo daemon` runs the daemon in the
// foreground.
package main
