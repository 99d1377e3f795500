package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"quiz-widget-service/internal/app"
)

// ResourceMetadata is served at /.well-known/oauth-protected-resource.
type ResourceMetadata struct {
	Resource             string   `json:"resource"`
	AuthorizationServers []string `json:"authorization_servers"`
	ScopesSupported      []string `json:"scopes_supported"`
}

// AuthServerMetadataSource supplies the document served at
// /.well-known/oauth-authorization-server.
type AuthServerMetadataSource interface {
	AuthorizationServerMetadata(ctx context.Context) (json.RawMessage, error)
}

// RouterConfig carries the transport settings taken from config.
type RouterConfig struct {
	AllowedOrigins []string
	Metadata       ResourceMetadata
	// AuthServer is optional; without it the discovery route answers 404.
	AuthServer     AuthServerMetadataSource
	RequestTimeout time.Duration
}

// NewRouter mounts the REST API, the WebSocket endpoint, and health routes.
func NewRouter(service *app.QuizService, auth Authenticator, cfg RouterConfig) http.Handler {
	h := NewHandler(service, auth, cfg.Metadata)
	h.authServer = cfg.AuthServer
	ws := NewWSHandler(service, auth)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Trace-ID"},
		ExposedHeaders:   []string{"WWW-Authenticate"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Get("/.well-known/oauth-protected-resource", h.ResourceMetadata)
	r.Get("/.well-known/oauth-authorization-server", h.AuthorizationServerMetadata)
	r.Get("/ws", ws.ServeWS)

	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.Timeout(timeout))

		api.Post("/sessions", h.StartSession)
		api.Route("/sessions/{sessionID}", func(sr chi.Router) {
			sr.Get("/", h.GetSession)
			sr.Delete("/", h.EndSession)
			sr.Post("/answer", h.Answer)
			sr.Post("/previous", h.Previous)
			sr.Post("/next", h.Next)
			sr.Post("/goto", h.GoTo)
			sr.Post("/retake", h.Retake)
			sr.With(h.requireAuth).Post("/save", h.Save)
		})

		api.Group(func(pr chi.Router) {
			pr.Use(h.requireAuth)
			pr.Get("/quiz", h.LatestQuiz)
			pr.Post("/quiz/{quizID}/sessions", h.StartSavedSession)
		})
	})
	return r
}
