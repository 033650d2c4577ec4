// Package workflow advances queued try-on sessions through the processing
// stage.
//
// The Manager runs a fixed pool of workers. Each worker reclaims sessions whose
// heartbeat went stale, atomically claims the oldest PENDING session, runs the
// stage handler while a heartbeat goroutine keeps the claim alive, and persists
// the terminal COMPLETED or FAILED status. Idle workers sleep for the queue
// poll interval unless Wake is called.
package workflow
