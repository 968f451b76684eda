// handlers_solve.go - Per-question solve and copy handlers
package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/qps-ai/client/internal/models"
	"github.com/qps-ai/client/internal/session"
)

// SolveHandlerImpl implements the SolveHandler interface
type SolveHandlerImpl struct {
	ctrl SessionController
}

// NewSolveHandler creates a new solve handler
func NewSolveHandler(ctrl SessionController) SolveHandler {
	return &SolveHandlerImpl{ctrl: ctrl}
}

// HandleSolve starts solving the question at :index. Pending and failed
// questions may be solved; solving a failed question retries it. With
// ?wait=true the response carries the finished pair.
func (h *SolveHandlerImpl) HandleSolve(c echo.Context) error {
	index, err := indexParam(c)
	if err != nil {
		return err
	}

	if wait, _ := strconv.ParseBool(c.QueryParam("wait")); wait {
		if err := h.ctrl.Solve(c.Request().Context(), index); err != nil {
			return fromWorkflowError(err)
		}
		return c.JSON(http.StatusOK, pairView(h.ctrl.Snapshot(), index))
	}

	if err := h.ctrl.StartSolve(index); err != nil {
		return fromWorkflowError(err)
	}
	return c.JSON(http.StatusAccepted, pairView(h.ctrl.Snapshot(), index))
}

// ClipboardHandlerImpl implements the ClipboardHandler interface
type ClipboardHandlerImpl struct {
	ctrl     SessionController
	notifier Notifier
}

// NewClipboardHandler creates a new clipboard handler
func NewClipboardHandler(ctrl SessionController, notifier Notifier) ClipboardHandler {
	return &ClipboardHandlerImpl{ctrl: ctrl, notifier: notifier}
}

// HandleCopy copies the answer of a solved question to the clipboard
func (h *ClipboardHandlerImpl) HandleCopy(c echo.Context) error {
	index, err := indexParam(c)
	if err != nil {
		return err
	}

	snap := h.ctrl.Snapshot()
	if index >= len(snap.Pairs) {
		return NewNotFoundError("question", strconv.Itoa(index))
	}
	p := snap.Pairs[index]
	if p.Status != models.PairStatusSolved {
		return NewConflictError("question has no answer to copy")
	}

	h.notifier.Notify(index, p.Answer)
	// A reset between the snapshot and Notify would leave the indicator on
	// a pair of a discarded session.
	if h.ctrl.Generation() != snap.Generation {
		h.notifier.Cancel()
		return fromWorkflowError(session.ErrStaleGeneration)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"index":  index,
		"copied": true,
	})
}

// HandleGetClipboard returns which question shows the copied indicator
func (h *ClipboardHandlerImpl) HandleGetClipboard(c echo.Context) error {
	index, active := h.notifier.Active()
	resp := map[string]interface{}{"active": active}
	if active {
		resp["index"] = index
	}
	return c.JSON(http.StatusOK, resp)
}

func indexParam(c echo.Context) (int, error) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		return 0, NewValidationError("index")
	}
	return index, nil
}

func pairView(s models.Session, index int) PairView {
	if index < 0 || index >= len(s.Pairs) {
		return PairView{Index: index}
	}
	p := s.Pairs[index]
	return PairView{
		Index:    index,
		Question: p.Question,
		Answer:   p.Answer,
		Status:   p.Status,
		Display:  p.DisplayText(),
	}
}
