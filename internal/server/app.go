package server

import (
	"database/sql"

	"exstock/internal/cart"
	"exstock/internal/catalog"
	"exstock/internal/config"
	"exstock/internal/ledger"
	"exstock/internal/websocket"
	"exstock/internal/workflow"
)

// ContextKey is the type used for request context keys.
type ContextKey string

const (
	// CtxIdentity carries the requester's email.
	CtxIdentity ContextKey = "identity"
	// CtxSession carries the session token, which also keys the cart draft.
	CtxSession ContextKey = "session"
)

// App holds shared dependencies for the application.
type App struct {
	DB       *sql.DB
	Cfg      *config.Config
	Store    *ledger.Store
	Sweeper  *ledger.Sweeper
	Catalog  catalog.Source
	Cache    *catalog.SnapshotCache
	Carts    *cart.Store
	Workflow *workflow.Workflow
	Hub      *websocket.Hub
}
