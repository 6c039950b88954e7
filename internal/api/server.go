package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/liao/chat-analyst/internal/chat"
	"github.com/liao/chat-analyst/internal/query"
	"github.com/liao/chat-analyst/internal/upload"
)

// Deps 服务依赖，Forget 可为空（未开启检索时）
type Deps struct {
	Sessions       *chat.Manager
	Router         *query.Router
	Upload         upload.Options
	AllowedOrigins []string
	Forget         func(sessionID string)
}

type Server struct {
	router   *chi.Mux
	addr     string
	sessions *chat.Manager
	answers  *query.Router
	upload   upload.Options
	forget   func(string)
}

func NewServer(addr string, deps Deps) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Requested-With"},
		MaxAge:         300,
	}))

	s := &Server{
		router:   router,
		addr:     addr,
		sessions: deps.Sessions,
		answers:  deps.Router,
		upload:   deps.Upload,
		forget:   deps.Forget,
	}

	router.Get("/health", s.health)
	router.Route("/api/v1/sessions", func(r chi.Router) {
		r.Post("/", s.createSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Use(s.sessionCtx)
			r.Delete("/", s.resetSession)
			r.Put("/transcript", s.putTranscript)
			r.Get("/records", s.getRecords)
			r.Get("/top-words", s.getTopWords)
			r.Post("/messages", s.postMessage)
			r.Get("/messages", s.getMessages)
			r.Get("/stream", s.stream)
		})
	})

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start 阻塞直到 ctx 结束，然后优雅关闭
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	slog.Info("API server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Len(),
	})
}

type ctxKey struct{}

func (s *Server) sessionCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.sessions.Get(chi.URLParam(r, "id"))
		if !ok {
			respondWithError(w, http.StatusNotFound, "session not found")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, sess)))
	})
}

func sessionFrom(r *http.Request) *chat.Session {
	return r.Context().Value(ctxKey{}).(*chat.Session)
}

func respondWithJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, map[string]string{"error": message})
}
