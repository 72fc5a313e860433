package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/agng-dev/montron/internal/auth"
	"github.com/agng-dev/montron/internal/export"
	"github.com/agng-dev/montron/internal/formapi"
	"github.com/agng-dev/montron/internal/handler"
	"github.com/agng-dev/montron/internal/ingest"
	"github.com/agng-dev/montron/internal/middleware"
	"github.com/agng-dev/montron/internal/pin"
	"github.com/agng-dev/montron/internal/secrets"
	"github.com/agng-dev/montron/internal/storage"
	"github.com/agng-dev/montron/internal/store"
	ws "github.com/agng-dev/montron/internal/websocket"
	"github.com/agng-dev/montron/internal/workday"
)

// Config carries everything the server needs beyond the open database.
type Config struct {
	JWTSecret    string
	Storage      storage.Config
	SyncInterval time.Duration
}

type Server struct {
	db           *sql.DB
	hub          *ws.Hub
	syncer       *ingest.Syncer
	formClient   *formapi.Client
	sessionStore *store.SessionStore
	userStore    *store.UserStore
	jwtManager   *auth.JWTManager
	rateLimiter  *middleware.RateLimiter
	configStore  *store.ConfigStore

	authH     *handler.AuthHandler
	employeeH *handler.EmployeeHandler
	workdayH  *handler.WorkdayHandler
	layoutH   *handler.LayoutHandler
	pinH      *handler.PINHandler
	setupH    *handler.SetupHandler
	configH   *handler.ConfigHandler
	exportH   *handler.ExportHandler
	templateH *handler.TemplateHandler

	logger *slog.Logger
}

func New(db *sql.DB, formClient *formapi.Client, box *secrets.Box, firebase *auth.FirebaseVerifier, cfg Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	userStore := store.NewUserStore(db)
	sessionStore := store.NewSessionStore(db)
	employeeStore := store.NewEmployeeStore(db)
	workdayStore := store.NewWorkdayStore(db)
	reportStore := store.NewReportStore(db)
	layoutStore := store.NewLayoutStore(db)
	configStore := store.NewConfigStore(db)
	pinStore := store.NewPINStore(db)
	auditStore := store.NewAuditStore(db)

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, 15*time.Minute)
	pinService := pin.NewService(pinStore, logger.With("component", "pin"))
	objectStore := storage.New(cfg.Storage)

	editSessions := workday.NewEditSessions()
	exportBuilder := export.NewBuilder(employeeStore, workdayStore, reportStore)
	syncer := ingest.NewSyncer(formClient, employeeStore, workdayStore, reportStore, configStore, hub, logger, cfg.SyncInterval)

	workdayH := handler.NewWorkdayHandler(
		workdayStore, reportStore, employeeStore, auditStore,
		pinService, objectStore, formClient, hub,
		logger.With("component", "workday"),
	)

	return &Server{
		db:           db,
		hub:          hub,
		syncer:       syncer,
		formClient:   formClient,
		sessionStore: sessionStore,
		userStore:    userStore,
		jwtManager:   jwtManager,
		rateLimiter:  middleware.NewRateLimiter(),
		configStore:  configStore,
		authH:        handler.NewAuthHandler(userStore, sessionStore, jwtManager, firebase, logger.With("component", "auth")),
		employeeH:    handler.NewEmployeeHandler(employeeStore, workdayStore, logger.With("component", "employee")),
		workdayH:     workdayH,
		layoutH:      handler.NewLayoutHandler(layoutStore, logger.With("component", "layout")),
		pinH:         handler.NewPINHandler(pinService, logger.With("component", "pin_handler")),
		setupH:       handler.NewSetupHandler(configStore, formClient, box, logger.With("component", "setup")),
		configH:      handler.NewConfigHandler(configStore, formClient, box, logger.With("component", "config")),
		exportH:      handler.NewExportHandler(exportBuilder, logger.With("component", "export")),
		templateH: handler.NewTemplateHandler(
			employeeStore, workdayStore, reportStore, layoutStore, configStore,
			pinService, editSessions, exportBuilder, workdayH,
			logger.With("component", "template"),
		),
		logger: logger,
	}
}

// Syncer returns the ingest syncer so main can start and stop it.
func (s *Server) Syncer() *ingest.Syncer {
	return s.syncer
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("GET /login", s.templateH.LoginPage)
	outerMux.HandleFunc("POST /auth/login", s.rateLimitedHandler(s.authH.Login))
	outerMux.HandleFunc("POST /auth/firebase-login", s.rateLimitedHandler(s.authH.FirebaseLogin))
	outerMux.HandleFunc("POST /auth/refresh", s.authH.Refresh)
	outerMux.HandleFunc("POST /auth/logout", s.authH.Logout)
	outerMux.HandleFunc("GET /setup", s.templateH.SetupPage)
	outerMux.HandleFunc("GET /setup/state", s.setupH.State)
	outerMux.HandleFunc("POST /setup/token", s.rateLimitedHandler(s.setupH.Token))
	outerMux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir("web/static"))))
	outerMux.HandleFunc("GET /health", s.healthHandler)

	// JSON API, answers 401 instead of a login redirect
	apiMux := http.NewServeMux()
	s.registerAPIRoutes(apiMux)
	apiAuth := middleware.RequireAPIAuth(s.jwtManager, s.sessionStore, s.userStore)
	outerMux.Handle("/api/", apiAuth(apiMux))

	// Pages and HTMX partials, redirect to /login
	pageMux := http.NewServeMux()
	s.registerPageRoutes(pageMux)
	pageAuth := middleware.RequireAuth(s.jwtManager, s.sessionStore, s.userStore)
	outerMux.Handle("/", pageAuth(pageMux))

	gate := middleware.SetupGate(s.configStore)
	return middleware.RequestLogger(s.logger.With("component", "http"))(gate(outerMux))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

func (s *Server) registerAPIRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/users/me", s.authH.Me)

	// Employees and workdays
	mux.HandleFunc("GET /api/employees", s.employeeH.List)
	mux.HandleFunc("GET /api/employees/{id}", s.employeeH.Get)
	mux.HandleFunc("GET /api/employees/{id}/workdays", s.employeeH.Workdays)
	mux.HandleFunc("GET /api/workdays/{id}", s.workdayH.Get)
	mux.HandleFunc("PATCH /api/workdays/{id}/tb", s.workdayH.PatchTB)
	mux.HandleFunc("PATCH /api/workdays/{id}/rs", s.workdayH.PatchRS)
	mux.HandleFunc("GET /api/workday-layout", s.layoutH.Get)

	// Documents
	mux.HandleFunc("POST /api/workdays/{id}/pdf/{kind}", s.workdayH.GeneratePdf)
	mux.HandleFunc("GET /api/workdays/{id}/pdf/{kind}", s.workdayH.GeneratePdf)
	mux.HandleFunc("POST /api/workdays/{id}/attachments/presign-download", s.workdayH.PresignDownload)

	// Release flow
	mux.HandleFunc("POST /api/workdays/{id}/release/request-pin", s.workdayH.ReleaseRequestPin)
	mux.HandleFunc("POST /api/workdays/{id}/release/confirm", s.workdayH.ReleaseConfirm)

	// Release PIN management
	mux.HandleFunc("GET /api/users/me/pin/status", s.pinH.Status)
	mux.HandleFunc("POST /api/users/me/pin", s.pinH.Set)
	mux.HandleFunc("POST /api/users/me/pin/verify", s.rateLimitedHandler(s.pinH.Verify))

	// Configuration
	mux.HandleFunc("GET /api/config/form-api", s.configH.GetFormAPI)
	mux.HandleFunc("PUT /api/config/form-api", s.configH.PutFormAPI)

	// Export
	mux.HandleFunc("GET /api/export", s.exportH.Documents)
	mux.HandleFunc("GET /api/export/csv", s.exportH.CSV)
}

func (s *Server) registerPageRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /", s.templateH.Dashboard)
	mux.HandleFunc("GET /employees/list", s.templateH.EmployeeList)
	mux.HandleFunc("GET /employees/{id}/days", s.templateH.EmployeeDays)

	// Day detail with in-memory edit session
	mux.HandleFunc("GET /workdays/{id}/view", s.templateH.DayPage)
	mux.HandleFunc("POST /workdays/{id}/edit", s.templateH.DayEdit)
	mux.HandleFunc("POST /workdays/{id}/edit/field", s.templateH.DayField)
	mux.HandleFunc("POST /workdays/{id}/edit/save", s.templateH.DaySave)
	mux.HandleFunc("POST /workdays/{id}/edit/cancel", s.templateH.DayCancel)

	// Release dialog keypad
	mux.HandleFunc("GET /workdays/{id}/release", s.templateH.ReleaseDialog)
	mux.HandleFunc("POST /workdays/{id}/release/key", s.templateH.ReleaseKey)
	mux.HandleFunc("POST /workdays/{id}/release/force", s.templateH.ReleaseForce)

	mux.HandleFunc("GET /export", s.templateH.ExportPage)
	mux.HandleFunc("GET /settings", s.templateH.SettingsPage)

	// WebSocket
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub))
}
