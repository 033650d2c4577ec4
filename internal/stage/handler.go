package stage

import (
	"context"

	"fitstogo/internal/store"
)

// Handler describes the contract the workflow manager needs from the try-on
// processor. Execute records the outcome on the session (ResultURL); the
// manager persists the terminal status.
type Handler interface {
	Prepare(context.Context, *store.TryOnSession) error
	Execute(context.Context, *store.TryOnSession) error
	HealthCheck(context.Context) Health
}
