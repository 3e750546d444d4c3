package rest

import (
	"net/http"
	"os"

	"github.com/gorilla/mux"

	"heartstage/internal/repository"
	"heartstage/internal/service"
	"heartstage/internal/show"
	"heartstage/internal/transport/rest/handler"
	"heartstage/internal/transport/rest/middleware"
	"heartstage/internal/transport/ws"
)

// Container holds all dependencies for the router
type Container struct {
	AuthService   *service.AuthService
	RosterService *service.RosterService
	Uploader      service.Uploader
	Registrations repository.RegistrationRepo
	Engine        *show.Engine
}

// NewRouter creates the API router with all endpoints
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()

	// Initialize handlers
	authHandler := handler.NewAuthHandler(c.AuthService)
	showHandler := handler.NewShowHandler(c.Engine)
	streamHandler := handler.NewStreamHandler(c.Engine)
	registrationHandler := handler.NewRegistrationHandler(c.Registrations, c.RosterService)
	uploadHandler := handler.NewUploadHandler(c.Uploader)
	wsHandler := ws.NewHandler(c.Engine)

	// Initialize middleware
	authMW := middleware.NewAuthMiddleware(c.AuthService)

	// CORS middleware (apply first)
	r.Use(corsMiddleware)

	// API v1 routes
	v1 := r.PathPrefix("/v1").Subrouter()

	// Public routes: login, the sign-up form, and every read surface.
	// Guest control pages and the stage display are plain viewers of the
	// stream; only mutations are gated.
	v1.HandleFunc("/auth/login", authHandler.Login).Methods("POST", "OPTIONS")
	v1.HandleFunc("/registrations", registrationHandler.Create).Methods("POST", "OPTIONS")
	v1.HandleFunc("/show", showHandler.Get).Methods("GET", "OPTIONS")
	v1.HandleFunc("/show/stream", streamHandler.Stream).Methods("GET")
	v1.HandleFunc("/ws/show", wsHandler.ShowWS).Methods("GET")

	// Uploaded media
	r.HandleFunc("/files/{id}", uploadHandler.Serve).Methods("GET")

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// Director routes (require director auth)
	directorRoutes := v1.NewRoute().Subrouter()
	directorRoutes.Use(authMW.RequireDirector)

	directorRoutes.HandleFunc("/show/action", showHandler.Action).Methods("POST", "OPTIONS")
	directorRoutes.HandleFunc("/registrations", registrationHandler.List).Methods("GET", "OPTIONS")
	directorRoutes.HandleFunc("/registrations/{gender}/{row}", registrationHandler.Delete).Methods("DELETE", "OPTIONS")
	directorRoutes.HandleFunc("/roster/import", registrationHandler.Import).Methods("POST", "OPTIONS")
	directorRoutes.HandleFunc("/uploads", uploadHandler.Upload).Methods("POST", "OPTIONS")

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowedOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
		if allowedOrigins == "" {
			allowedOrigins = "*"
		}

		w.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
