package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/commentscope/internal/config"
	"github.com/sells-group/commentscope/internal/llm"
	"github.com/sells-group/commentscope/internal/model"
	"github.com/sells-group/commentscope/internal/pipeline"
	"github.com/sells-group/commentscope/internal/session"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP analysis API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, config.ModeServe)
		if err != nil {
			return err
		}
		defer env.Close()

		srvState := newServer(env.Pipeline, env.Store, env.WorkDir, cfg.Server.RequestTimeout)
		go srvState.live.sweep(ctx, cfg.Server.SessionIdle, time.Minute)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(srvState, cfg.Server),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx) //nolint:errcheck
			srvState.live.closeAll()
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// turnRunner is the part of the pipeline the API drives.
type turnRunner interface {
	Handle(ctx context.Context, sc *session.Context, message string, opts pipeline.TurnOptions) (model.Reply, error)
	Restore(user, name, baseDir string, b *model.SessionBundle) (*session.Context, error)
}

var _ turnRunner = (*pipeline.Pipeline)(nil)

// server holds the live sessions and dependencies of the HTTP API.
type server struct {
	runner  turnRunner
	store   session.Store
	live    *liveSessions
	baseDir string
	timeout time.Duration
	policy  *bluemonday.Policy
}

func newServer(runner turnRunner, st session.Store, baseDir string, timeout time.Duration) *server {
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	return &server{
		runner:  runner,
		store:   st,
		live:    newLiveSessions(),
		baseDir: baseDir,
		timeout: timeout,
		policy:  bluemonday.UGCPolicy(),
	}
}

// buildRouter mounts the API routes.
func buildRouter(s *server, c config.ServerConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestSize(1 * 1024 * 1024))

	origins := c.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1/sessions", func(r chi.Router) {
		if c.RatePerMinute > 0 {
			r.Use(httprate.LimitByIP(c.RatePerMinute, time.Minute))
		}
		r.Post("/", s.createSession)
		r.Get("/{id}", s.getSession)
		r.Delete("/{id}", s.deleteSession)
		r.Post("/{id}/messages", s.postMessage)
		r.Post("/{id}/save", s.saveSession)
	})

	return r
}

type createRequest struct {
	User       string `json:"user"`
	Message    string `json:"message"`
	FirstParty bool   `json:"first_party"`
	Restore    string `json:"restore"`
}

type messageRequest struct {
	Message string `json:"message"`
}

type replyBody struct {
	Status model.ReplyStatus `json:"status"`
	Text   string            `json:"text"`
}

type turnResponse struct {
	ID    string     `json:"id"`
	Name  string     `json:"name,omitempty"`
	Reply *replyBody `json:"reply,omitempty"`
}

type errorResponse struct {
	Error string     `json:"error"`
	Reply *replyBody `json:"reply,omitempty"`
}

type sessionResponse struct {
	ID       string             `json:"id"`
	User     string             `json:"user"`
	Name     string             `json:"name,omitempty"`
	Schema   *model.QuerySchema `json:"schema,omitempty"`
	Chat     []model.ChatTurn   `json:"chat"`
	Videos   int                `json:"videos"`
	Analysis bool               `json:"analysis"`
}

// createSession starts a session, or restores a saved one, and runs the
// first message if one is given.
func (s *server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.User = strings.TrimSpace(req.User)
	req.Message = strings.TrimSpace(req.Message)
	if req.User == "" {
		writeError(w, http.StatusBadRequest, "user is required")
		return
	}
	if req.Message == "" && req.Restore == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	var sc *session.Context
	if req.Restore != "" {
		if s.store == nil {
			writeError(w, http.StatusServiceUnavailable, "session store unavailable")
			return
		}
		b, err := s.store.Load(r.Context(), req.User, req.Restore)
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "saved session not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		sc, err = s.runner.Restore(req.User, req.Restore, s.baseDir, b)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	} else {
		sc = session.New(req.User, s.baseDir)
	}
	s.live.put(sc)

	resp := turnResponse{ID: sc.ID, Name: sc.Name}
	if req.Message == "" {
		writeJSON(w, http.StatusCreated, resp)
		return
	}
	reply, status, ok := s.turn(w, r, sc, req.Message, pipeline.TurnOptions{FirstParty: req.FirstParty})
	if !ok {
		return
	}
	resp.Reply = reply
	if status == http.StatusOK {
		status = http.StatusCreated
	}
	writeJSON(w, status, resp)
}

func (s *server) postMessage(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	reply, status, ok := s.turn(w, r, sc, req.Message, pipeline.TurnOptions{})
	if !ok {
		return
	}
	writeJSON(w, status, turnResponse{ID: sc.ID, Name: sc.Name, Reply: reply})
}

// turn runs one message under the session lock. It writes the error
// response itself and reports ok=false when the turn failed.
func (s *server) turn(w http.ResponseWriter, r *http.Request, sc *session.Context, message string, opts pipeline.TurnOptions) (*replyBody, int, bool) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.timeout)
	defer cancel()

	sc.Lock()
	reply, err := s.runner.Handle(ctx, sc, message, opts)
	sc.Unlock()

	log := zap.L().With(zap.String("session", sc.ID), zap.String("request_id", middleware.GetReqID(r.Context())))
	if err != nil {
		log.Error("turn failed", zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(errorResponse{ //nolint:errcheck
			Error: err.Error(),
			Reply: &replyBody{Status: model.ReplySystemError, Text: llm.MsgSystemError + err.Error()},
		})
		return nil, 0, false
	}
	log.Info("turn complete", zap.String("status", string(reply.Status)))

	status := http.StatusOK
	if reply.Status == model.ReplyBusy {
		status = http.StatusServiceUnavailable
	}
	return &replyBody{Status: reply.Status, Text: s.policy.Sanitize(reply.Text)}, status, true
}

func (s *server) getSession(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.lookup(w, r)
	if !ok {
		return
	}
	sc.Lock()
	defer sc.Unlock()

	chat := make([]model.ChatTurn, len(sc.Chat))
	for i, t := range sc.Chat {
		t.Content = s.policy.Sanitize(t.Content)
		chat[i] = t
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		ID:       sc.ID,
		User:     sc.User,
		Name:     sc.Name,
		Schema:   sc.Schema,
		Chat:     chat,
		Videos:   len(sc.Videos),
		Analysis: sc.HasAnalysis(),
	})
}

func (s *server) saveSession(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "session store unavailable")
		return
	}
	sc.Lock()
	defer sc.Unlock()
	if !sc.HasAnalysis() {
		writeError(w, http.StatusConflict, "session has no analysis to save")
		return
	}
	name, err := pipeline.Save(r.Context(), s.store, sc)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, turnResponse{ID: sc.ID, Name: name})
}

func (s *server) deleteSession(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.live.remove(sc.ID)
	w.WriteHeader(http.StatusNoContent)
}

// lookup resolves the {id} route parameter to a live session.
func (s *server) lookup(w http.ResponseWriter, r *http.Request) (*session.Context, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return nil, false
	}
	sc, ok := s.live.get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return sc, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// liveSessions holds in-memory sessions by id.
type liveSessions struct {
	mu sync.Mutex
	m  map[string]*session.Context
}

func newLiveSessions() *liveSessions {
	return &liveSessions{m: make(map[string]*session.Context)}
}

func (l *liveSessions) put(sc *session.Context) {
	l.mu.Lock()
	l.m[sc.ID] = sc
	l.mu.Unlock()
}

func (l *liveSessions) get(id string) (*session.Context, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sc, ok := l.m[id]
	return sc, ok
}

func (l *liveSessions) remove(id string) {
	l.mu.Lock()
	sc, ok := l.m[id]
	delete(l.m, id)
	l.mu.Unlock()
	if ok {
		cleanup(sc)
	}
}

func (l *liveSessions) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}

// prune drops sessions idle since before cutoff and returns how many.
// Sessions with a turn in progress are kept.
func (l *liveSessions) prune(cutoff time.Time) int {
	l.mu.Lock()
	var stale []*session.Context
	for id, sc := range l.m {
		if !sc.TryLock() {
			continue
		}
		idle := sc.UpdatedAt().Before(cutoff)
		sc.Unlock()
		if idle {
			stale = append(stale, sc)
			delete(l.m, id)
		}
	}
	l.mu.Unlock()
	for _, sc := range stale {
		cleanup(sc)
	}
	return len(stale)
}

// sweep prunes idle sessions every interval until ctx is done.
func (l *liveSessions) sweep(ctx context.Context, idle, interval time.Duration) {
	if idle <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := l.prune(now.Add(-idle)); n > 0 {
				zap.L().Info("pruned idle sessions", zap.Int("count", n))
			}
		}
	}
}

func (l *liveSessions) closeAll() {
	l.prune(time.Now().Add(time.Hour))
}

func cleanup(sc *session.Context) {
	if err := sc.Cleanup(); err != nil {
		zap.L().Warn("session cleanup failed", zap.String("session", sc.ID), zap.Error(err))
	}
}
