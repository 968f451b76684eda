// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/qps-ai/client/internal/models"
)

// SessionHandler handles session state operations
type SessionHandler interface {
	HandleGetSession(c echo.Context) error
	HandleGetSessionMsgpack(c echo.Context) error
	HandleResetSession(c echo.Context) error
}

// UploadHandler handles document upload
type UploadHandler interface {
	HandleUpload(c echo.Context) error
}

// SolveHandler handles per-question solve requests
type SolveHandler interface {
	HandleSolve(c echo.Context) error
}

// ClipboardHandler handles copying answers
type ClipboardHandler interface {
	HandleCopy(c echo.Context) error
	HandleGetClipboard(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// FeedHandler streams session changes over WebSocket
type FeedHandler interface {
	HandleFeed(c echo.Context) error
}

// SessionController drives the upload and solve workflows.
// Implemented by *session.Controller; mockable in tests.
type SessionController interface {
	Snapshot() models.Session
	Generation() uint64
	Upload(ctx context.Context, doc *models.Document) error
	StartUpload(doc *models.Document) (uint64, error)
	Solve(ctx context.Context, index int) error
	StartSolve(index int) error
	Reset()
}

// ChangeFeed signals session changes. Implemented by *session.Store.
type ChangeFeed interface {
	Subscribe() (<-chan struct{}, func())
}

// Notifier copies answers and tracks the copied indicator.
// Implemented by *clipboard.Notifier.
type Notifier interface {
	Notify(index int, text string)
	Active() (int, bool)
	Cancel()
}

// HealthChecker pings the collaborator service.
// Implemented by *solver.Client.
type HealthChecker interface {
	Health(ctx context.Context) (string, error)
}
