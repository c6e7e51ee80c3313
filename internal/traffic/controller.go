// internal/traffic/controller.go
package traffic

import (
	"context"
	"errors"

	"github.com/FairForge/greenlight/internal/environment"
)

// ErrSwitchUnconfirmed means commands were issued but the read-back never
// showed the desired backend state within the confirmation deadline.
var ErrSwitchUnconfirmed = errors.New("traffic: switch not confirmed by proxy")

// Controller is the administrative surface of the reverse proxy. Commands
// are never trusted fire-and-forget: every mutation is confirmed by
// re-reading the proxy's live backend state.
type Controller interface {
	// SetActive routes a team's traffic to env: the target's backend server
	// is enabled before the outgoing one is disabled, so at no instant are
	// both environments down.
	SetActive(ctx context.Context, team string, env environment.Environment) error

	// BackendState reports which environments are currently enabled.
	BackendState(ctx context.Context, team string) (map[environment.Environment]bool, error)
}
