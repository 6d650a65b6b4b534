// Package stock serves the annotated surplus catalog.
package stock

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"exstock/internal/catalog"
	"exstock/internal/ledger"
	"exstock/internal/models"
	"exstock/internal/response"
	"exstock/internal/server"
)

type Handler struct {
	App *server.App
}

func NewHandler(app *server.App) *Handler {
	return &Handler{App: app}
}

// stockItem is a catalog item annotated with the availability picture the
// requester acts on.
type stockItem struct {
	catalog.Item
	NetAvailable decimal.Decimal `json:"net_available"`
	Reserved     bool            `json:"reserved"`
	Requestable  bool            `json:"requestable"`
}

func annotate(items []catalog.Item, pending map[string]int64) []stockItem {
	out := make([]stockItem, 0, len(items))
	for _, it := range items {
		net := ledger.NetAvailable(it.OnHand, pending[it.Key])
		reserved := ledger.HasBlockingReservation(pending, it.Key)
		out = append(out, stockItem{
			Item:         it,
			NetAvailable: net,
			Reserved:     reserved,
			Requestable:  !reserved && net.GreaterThan(decimal.Zero),
		})
	}
	return out
}

// HandleList returns one catalog page, reconciled and annotated.
//
// A fresh fetch triggers a reconciliation pass over that snapshot before the
// availability numbers are computed, so the page always reflects what the
// sweep just learned. When the gateway is down the last good snapshot for
// the same query is served marked stale, with no reconciliation applied;
// outstanding reservations all still count.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", h.App.Cfg.Catalog.PageSize)
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = h.App.Cfg.Catalog.PageSize
	}
	search := r.URL.Query().Get("search")

	snap, err := h.App.Catalog.Fetch(page, pageSize, search)
	if err != nil {
		if errors.Is(err, catalog.ErrUnavailable) {
			h.serveStale(w, page, pageSize, search)
			return
		}
		response.Err(w, "Failed to fetch stock", 502)
		return
	}
	h.App.Cache.Put(page, pageSize, search, snap)

	// Best-effort pending is still served when the write-back fails; the
	// decided lines stay counted as reserved.
	pending, _ := h.App.Sweeper.Apply(snap.OnHand(), time.Now().UTC())

	response.JSONMeta(w, annotate(snap.Items, pending), &models.Meta{
		Total: snap.Total,
		Page:  snap.Page,
		Limit: snap.PageSize,
	})
}

func (h *Handler) serveStale(w http.ResponseWriter, page, pageSize int, search string) {
	snap, ok := h.App.Cache.Get(page, pageSize, search)
	if !ok {
		response.Err(w, "Stock gateway unavailable", 503)
		return
	}
	pending, err := h.App.Store.PendingByItem()
	if err != nil {
		response.Err(w, "Failed to read reservations", 500)
		return
	}
	response.JSONMeta(w, annotate(snap.Items, pending), &models.Meta{
		Total: snap.Total,
		Page:  snap.Page,
		Limit: snap.PageSize,
		Stale: true,
	})
}

// HandleBusinessUnits lists the business units visible to the gateway
// credentials.
func (h *Handler) HandleBusinessUnits(w http.ResponseWriter, r *http.Request) {
	units, err := h.App.Catalog.BusinessUnits()
	if err != nil {
		if errors.Is(err, catalog.ErrUnavailable) {
			response.Err(w, "Stock gateway unavailable", 503)
			return
		}
		response.Err(w, "Failed to fetch business units", 502)
		return
	}
	response.JSON(w, units)
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
