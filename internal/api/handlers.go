// handlers.go - Session state handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/qps-ai/client/internal/models"
	"github.com/vmihailenco/msgpack/v5"
)

// PairView is a pair as the presentation layer renders it.
type PairView struct {
	Index    int               `json:"index" msgpack:"index"`
	Question string            `json:"question" msgpack:"question"`
	Answer   string            `json:"answer" msgpack:"answer"`
	Status   models.PairStatus `json:"status" msgpack:"status"`
	Display  string            `json:"display" msgpack:"display"`
	Copied   bool              `json:"copied" msgpack:"copied"`
}

// SessionView is the session payload returned by the API and the feed.
type SessionView struct {
	Generation    uint64               `json:"generation" msgpack:"generation"`
	Status        models.SessionStatus `json:"status" msgpack:"status"`
	StatusMessage string               `json:"statusMessage,omitempty" msgpack:"statusMessage,omitempty"`
	DocumentName  string               `json:"documentName,omitempty" msgpack:"documentName,omitempty"`
	Pairs         []PairView           `json:"pairs" msgpack:"pairs"`
}

// NewSessionView builds the view of s. copied is the index of the pair
// showing the copied indicator, or -1.
func NewSessionView(s models.Session, copied int) SessionView {
	pairs := make([]PairView, len(s.Pairs))
	for i, p := range s.Pairs {
		pairs[i] = PairView{
			Index:    i,
			Question: p.Question,
			Answer:   p.Answer,
			Status:   p.Status,
			Display:  p.DisplayText(),
			Copied:   i == copied,
		}
	}
	return SessionView{
		Generation:    s.Generation,
		Status:        s.Status,
		StatusMessage: s.StatusMessage,
		DocumentName:  s.DocumentName,
		Pairs:         pairs,
	}
}

// SessionHandlerImpl implements the SessionHandler interface
type SessionHandlerImpl struct {
	ctrl     SessionController
	notifier Notifier
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(ctrl SessionController, notifier Notifier) SessionHandler {
	return &SessionHandlerImpl{ctrl: ctrl, notifier: notifier}
}

func (h *SessionHandlerImpl) view() SessionView {
	return currentView(h.ctrl, h.notifier)
}

func currentView(ctrl SessionController, notifier Notifier) SessionView {
	copied := -1
	if notifier != nil {
		if idx, ok := notifier.Active(); ok {
			copied = idx
		}
	}
	return NewSessionView(ctrl.Snapshot(), copied)
}

// HandleGetSession returns the current session
func (h *SessionHandlerImpl) HandleGetSession(c echo.Context) error {
	return c.JSON(http.StatusOK, h.view())
}

// HandleGetSessionMsgpack returns the current session encoded as msgpack
func (h *SessionHandlerImpl) HandleGetSessionMsgpack(c echo.Context) error {
	data, err := msgpack.Marshal(h.view())
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// HandleResetSession discards the session
func (h *SessionHandlerImpl) HandleResetSession(c echo.Context) error {
	h.ctrl.Reset()
	return c.JSON(http.StatusOK, h.view())
}
