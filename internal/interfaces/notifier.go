package interfaces

import (
	"context"

	"github.com/mandycs/CaixaBankCodingChallenge/internal/models"
)

// Notifier delivers an alert to an account owner. Delivery is fire-and-forget:
// Notify never reports failures back to the caller.
type Notifier interface {
	Notify(ctx context.Context, ownerID string, kind models.AlertKind, details map[string]string)
}
