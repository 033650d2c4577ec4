// Package daemon coordinates the long-running fitstogo process.
//
// It wires the workflow manager, the cron scheduler and the HTTP API into a
// single lifecycle with flock-based locking to prevent multiple instances
// sharing one log directory. Start brings components up in dependency order
// and Stop tears them down in reverse.
//
// Keep orchestration logic here: request handling lives in the api package and
// session processing in workflow and tryon, while the daemon focuses on
// startup, shutdown, and high level coordination.
package daemon
