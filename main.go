package main

import (
	"flag"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"exstock/internal/auth"
	"exstock/internal/cart"
	"exstock/internal/catalog"
	"exstock/internal/config"
	"exstock/internal/db"
	"exstock/internal/handlers/admin"
	"exstock/internal/handlers/requisition"
	"exstock/internal/handlers/stock"
	"exstock/internal/ledger"
	"exstock/internal/response"
	"exstock/internal/server"
	"exstock/internal/websocket"
	"exstock/internal/workflow"
)

func main() {
	godotenv.Load()

	configPath := flag.String("config", "exstock.yaml", "path to config file")
	listenAddr := flag.String("listen", "", "listen address (overrides config)")
	dbPath := flag.String("db", "", "database path (overrides config)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	conn, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer conn.Close()
	if err := db.Seed(conn); err != nil {
		log.Fatal().Err(err).Msg("seed database")
	}

	client := catalog.NewClient(
		cfg.Catalog.BaseURL, cfg.Catalog.TokenURL,
		cfg.Catalog.ClientID, cfg.Catalog.ClientSecret,
		cfg.Catalog.BusinessUnit)
	cache, err := catalog.NewSnapshotCache(cfg.SnapshotCacheSize)
	if err != nil {
		log.Fatal().Err(err).Msg("init snapshot cache")
	}

	store := ledger.NewStore(conn)
	sweeper := ledger.NewSweeper(store)
	hub := websocket.NewHub()
	sweeper.Notify = func(fulfilled int, pending map[string]int64) {
		hub.SweepApplied(fulfilled, len(pending))
	}

	app := &server.App{
		DB:       conn,
		Cfg:      cfg,
		Store:    store,
		Sweeper:  sweeper,
		Catalog:  client,
		Cache:    cache,
		Carts:    cart.NewStore(),
		Workflow: workflow.New(store),
		Hub:      hub,
	}

	stop := make(chan struct{})
	defer close(stop)
	go sweeper.RunEvery(cfg.SweepInterval, client, stop)

	// Reap expired sessions and the cart drafts of sessions that lapsed
	// without a logout.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				auth.PurgeExpired(conn)
				if n := app.Carts.PurgeIdle(time.Now().Add(-auth.CookieTTL)); n > 0 {
					log.Debug().Int("drafts", n).Msg("purged idle cart drafts")
				}
			}
		}
	}()

	stockH := stock.NewHandler(app)
	reqH := requisition.NewHandler(app)
	adminH := admin.NewHandler(app)

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", 405)
			return
		}
		adminH.HandleLogin(w, r)
	})
	mux.HandleFunc("/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", 405)
			return
		}
		adminH.HandleLogout(w, r)
	})
	mux.HandleFunc("/auth/me", adminH.HandleMe)
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		websocket.Handle(hub, w, r)
	})

	mux.HandleFunc("/api/v1/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		path := strings.TrimPrefix(r.URL.Path, "/api/v1/")
		path = strings.TrimSuffix(path, "/")
		parts := strings.Split(path, "/")

		switch {
		case path == "health" && r.Method == "GET":
			response.JSON(w, map[string]string{"status": "ok"})

		case path == "stock" && r.Method == "GET":
			stockH.HandleList(w, r)
		case path == "business-units" && r.Method == "GET":
			stockH.HandleBusinessUnits(w, r)

		case path == "cart" && r.Method == "GET":
			reqH.HandleGetCart(w, r)
		case path == "cart" && r.Method == "DELETE":
			reqH.HandleClearCart(w, r)
		case path == "cart/items" && r.Method == "POST":
			reqH.HandleAddToCart(w, r)
		case len(parts) == 3 && parts[0] == "cart" && parts[1] == "items" && r.Method == "DELETE":
			reqH.HandleRemoveFromCart(w, r, parts[2])

		case path == "requisitions" && r.Method == "POST":
			reqH.HandleSubmit(w, r)
		case path == "requisitions" && r.Method == "GET":
			reqH.HandleList(w, r)
		case len(parts) == 2 && parts[0] == "requisitions" && r.Method == "GET":
			reqH.HandleGet(w, r, parts[1])
		case len(parts) == 3 && parts[0] == "requisitions" && parts[2] == "export" && r.Method == "GET":
			reqH.HandleExport(w, r, parts[1])

		case path == "sweep" && r.Method == "POST":
			reqH.HandleSweep(w, r)

		default:
			response.Err(w, "Not found", 404)
		}
	})

	verifier := auth.NewVerifier(cfg.Identity.BaseURL, cfg.Identity.AllowedDomain)
	rl := server.NewRateLimiter()

	handler := server.LoggingMiddleware(cfg.AllowedOrigin)(
		server.SecurityHeaders(
			server.RateLimitMiddleware(rl)(
				server.RequireAuth(conn, verifier)(mux))))

	log.Info().Str("addr", cfg.ListenAddr).Str("db", cfg.DBPath).
		Str("business_unit", cfg.Catalog.BusinessUnit).
		Msg("exstock listening")
	if err := http.ListenAndServe(cfg.ListenAddr, handler); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
