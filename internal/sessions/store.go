package sessions

import (
	"context"

	"github.com/haasonsaas/nexus/pkg/models"
)

// Store is the interface for durable session persistence, used by the
// migrate/import/export CLI commands. The in-memory Manager never talks to
// a Store directly — it is the live, ephemeral side of session tracking.
type Store interface {
	Create(ctx context.Context, session *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	Update(ctx context.Context, session *models.Session) error
	Delete(ctx context.Context, id string) error

	GetByKey(ctx context.Context, routeKey string) (*models.Session, error)
	List(ctx context.Context, agentName string, opts ListOptions) ([]*models.Session, error)

	AppendMessage(ctx context.Context, sessionID string, msg *models.Message) error
	GetHistory(ctx context.Context, sessionID string, limit int) ([]*models.Message, error)

	Close() error
}

// ListOptions configures session listing.
type ListOptions struct {
	Limit  int
	Offset int
}
