package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/crypto/bcrypt"

	"github.com/img-pro/bandwidth-saver-sub002/journal"
	"github.com/img-pro/bandwidth-saver-sub002/watch"
)

const adminUser = "admin"

// serveAdmin runs the operator HTTP surface until ctx is cancelled.
// If ADMIN_PASSWORD_HASH is set (a bcrypt hash), every endpoint except
// /healthz requires basic auth.
func serveAdmin(ctx context.Context, addr string, w *watch.Watcher, j *journal.Journal, logger *slog.Logger) {
	srv := &http.Server{
		Addr:         addr,
		Handler:      newAdminRouter(w, j, os.Getenv("ADMIN_PASSWORD_HASH")),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	logger.Info("admin server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("admin server", "error", err)
	}
}

func newAdminRouter(w *watch.Watcher, j *journal.Journal, passwordHash string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
		rw.Write([]byte("ok\n"))
	})

	r.Group(func(r chi.Router) {
		if passwordHash != "" {
			r.Use(basicAuth(passwordHash))
		}

		r.Get("/status", func(rw http.ResponseWriter, req *http.Request) {
			writeJSON(rw, w.Status())
		})

		r.Get("/events", func(rw http.ResponseWriter, req *http.Request) {
			if j == nil {
				http.Error(rw, "journal disabled", http.StatusNotFound)
				return
			}
			n := queryInt(req, "n", 50)
			events, err := j.Recent(req.Context(), n)
			if err != nil {
				http.Error(rw, err.Error(), http.StatusInternalServerError)
				return
			}
			writeJSON(rw, events)
		})

		r.Get("/failures", func(rw http.ResponseWriter, req *http.Request) {
			if j == nil {
				http.Error(rw, "journal disabled", http.StatusNotFound)
				return
			}
			n := queryInt(req, "n", 20)
			failures, err := j.TopEdgeFailures(req.Context(), n)
			if err != nil {
				http.Error(rw, err.Error(), http.StatusInternalServerError)
				return
			}
			writeJSON(rw, failures)
		})
	})

	return r
}

func basicAuth(passwordHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
			user, pass, ok := req.BasicAuth()
			if !ok ||
				subtle.ConstantTimeCompare([]byte(user), []byte(adminUser)) != 1 ||
				bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(pass)) != nil {
				rw.Header().Set("WWW-Authenticate", `Basic realm="bandwidth-saver"`)
				http.Error(rw, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(rw, req)
		})
	}
}

func writeJSON(rw http.ResponseWriter, v any) {
	rw.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(rw)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

func queryInt(req *http.Request, key string, def int) int {
	raw := req.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
