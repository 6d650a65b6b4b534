package requisition

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"exstock/internal/audit"
	"exstock/internal/export"
	"exstock/internal/ledger"
	"exstock/internal/models"
	"exstock/internal/response"
	"exstock/internal/server"
	"exstock/internal/workflow"
)

// HandleSubmit turns the session's draft into a persisted requisition.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Description string `json:"description"`
	}
	if r.ContentLength > 0 {
		if err := response.DecodeBody(r, &req); err != nil {
			response.Err(w, "Invalid request body", 400)
			return
		}
	}

	draft := h.App.Carts.Get(server.Session(r))
	created, err := h.App.Workflow.Submit(draft, server.Identity(r), req.Description)
	if err != nil {
		switch {
		case errors.Is(err, workflow.ErrEmptyCart):
			response.Err(w, err.Error(), 400)
		case errors.Is(err, workflow.ErrSubmitInFlight):
			response.Err(w, err.Error(), 409)
		case errors.Is(err, workflow.ErrBlockedByReservation):
			response.Err(w, err.Error(), 409)
		default:
			response.Err(w, "Failed to save requisition", 500)
		}
		return
	}

	audit.LogRequest(h.App.DB, r, server.Identity(r), "create", "requisitions",
		created.ID, fmt.Sprintf("document %s, %d items", created.DocumentNumber, created.TotalItems))
	if h.App.Hub != nil {
		h.App.Hub.RequisitionCreated(created.DocumentNumber, created.TotalItems)
	}

	w.WriteHeader(201)
	response.JSON(w, created)
}

// HandleList returns one page of requisition headers, newest first.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 20)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	reqs, total, err := h.App.Store.ListRequisitions(page, limit)
	if err != nil {
		response.Err(w, "Failed to list requisitions", 500)
		return
	}
	response.JSONMeta(w, reqs, &models.Meta{Total: total, Page: page, Limit: limit})
}

// HandleGet returns one requisition with its lines.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request, id string) {
	req, err := h.App.Store.GetRequisition(id)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			response.Err(w, "Requisition not found", 404)
			return
		}
		response.Err(w, "Failed to load requisition", 500)
		return
	}
	response.JSON(w, req)
}

// HandleExport re-renders a stored requisition as a downloadable document.
// Line descriptions come from the catalog at export time; items the ERP no
// longer knows print "---".
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request, id string) {
	req, err := h.App.Store.GetRequisition(id)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			response.Err(w, "Requisition not found", 404)
			return
		}
		response.Err(w, "Failed to load requisition", 500)
		return
	}

	doc := export.Document{
		DocumentNumber: req.DocumentNumber,
		RequestedBy:    req.RequestedBy,
		Description:    req.Description,
		CreatedAt:      req.CreatedAt,
	}
	for _, line := range req.Lines {
		doc.Lines = append(doc.Lines, export.Line{
			SKU:          line.ItemKey,
			Description:  h.describeItem(line.ItemKey),
			OnHand:       line.InitialOnHand.String(),
			RequestedQty: line.RequestedQty,
			BusinessUnit: line.BusinessUnit,
		})
	}

	format := r.URL.Query().Get("format")
	audit.LogRequest(h.App.DB, r, server.Identity(r), "export", "requisitions",
		req.ID, "format "+format)

	if format == "xlsx" {
		export.WriteXLSX(w, doc)
	} else {
		export.WriteCSV(w, doc)
	}
}

func (h *Handler) describeItem(itemKey string) string {
	snap, err := h.App.Catalog.Fetch(1, h.App.Cfg.Catalog.PageSize, itemKey)
	if err != nil {
		return "---"
	}
	item, ok := snap.Lookup(itemKey)
	if !ok {
		return "---"
	}
	return item.Description
}

// HandleSweep runs a full reconciliation pass on demand, across every
// outstanding item key.
func (h *Handler) HandleSweep(w http.ResponseWriter, r *http.Request) {
	pending, err := h.App.Sweeper.SweepAll(h.App.Catalog, time.Now().UTC())
	if err != nil {
		response.Err(w, "Sweep skipped: "+err.Error(), 503)
		return
	}

	audit.LogRequest(h.App.DB, r, server.Identity(r), "sweep", "requisitions",
		"", fmt.Sprintf("%d items still pending", len(pending)))
	response.JSON(w, map[string]interface{}{"pending_by_item": pending})
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
