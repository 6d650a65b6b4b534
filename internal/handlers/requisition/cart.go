// Package requisition serves the cart, submission, and history endpoints.
package requisition

import (
	"errors"
	"net/http"
	"time"

	"exstock/internal/catalog"
	"exstock/internal/response"
	"exstock/internal/server"
	"exstock/internal/workflow"
)

type Handler struct {
	App *server.App
}

func NewHandler(app *server.App) *Handler {
	return &Handler{App: app}
}

type cartView struct {
	Phase string      `json:"phase"`
	Lines interface{} `json:"lines"`
}

// HandleGetCart returns the session's draft.
func (h *Handler) HandleGetCart(w http.ResponseWriter, r *http.Request) {
	draft := h.App.Carts.Get(server.Session(r))
	response.JSON(w, cartView{Phase: draft.Phase().String(), Lines: draft.Lines()})
}

// HandleAddToCart validates an item request against a fresh availability
// read and appends it to the draft. The gateway being down fails the add;
// reservation decisions never run against a stale snapshot.
func (h *Handler) HandleAddToCart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ItemKey string `json:"item_key"`
		Qty     int64  `json:"qty"`
	}
	if err := response.DecodeBody(r, &req); err != nil || req.ItemKey == "" {
		response.Err(w, "Invalid request body", 400)
		return
	}

	snap, err := h.App.Catalog.Fetch(1, h.App.Cfg.Catalog.PageSize, req.ItemKey)
	if err != nil {
		if errors.Is(err, catalog.ErrUnavailable) {
			response.Err(w, "Stock gateway unavailable", 503)
			return
		}
		response.Err(w, "Failed to fetch stock", 502)
		return
	}
	item, ok := snap.Lookup(req.ItemKey)
	if !ok {
		response.Err(w, "Item not found", 404)
		return
	}

	pending, _ := h.App.Sweeper.Apply(snap.OnHand(), time.Now().UTC())

	draft := h.App.Carts.Get(server.Session(r))
	if err := h.App.Workflow.AddLine(draft, item, req.Qty, pending); err != nil {
		response.Err(w, err.Error(), addStatus(err))
		return
	}
	response.JSON(w, cartView{Phase: draft.Phase().String(), Lines: draft.Lines()})
}

func addStatus(err error) int {
	switch {
	case errors.Is(err, workflow.ErrInvalidQuantity):
		return 400
	case errors.Is(err, workflow.ErrDuplicateItem),
		errors.Is(err, workflow.ErrBlockedByReservation),
		errors.Is(err, workflow.ErrInsufficientStock):
		return 409
	default:
		return 500
	}
}

// HandleRemoveFromCart drops one item from the draft.
func (h *Handler) HandleRemoveFromCart(w http.ResponseWriter, r *http.Request, itemKey string) {
	draft := h.App.Carts.Get(server.Session(r))
	if !h.App.Workflow.RemoveLine(draft, itemKey) {
		response.Err(w, "Item not in cart", 404)
		return
	}
	response.JSON(w, cartView{Phase: draft.Phase().String(), Lines: draft.Lines()})
}

// HandleClearCart empties the draft.
func (h *Handler) HandleClearCart(w http.ResponseWriter, r *http.Request) {
	draft := h.App.Carts.Get(server.Session(r))
	draft.Clear()
	response.JSON(w, cartView{Phase: draft.Phase().String(), Lines: draft.Lines()})
}
