package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"notify-broker/internal/domain"
)

// PassSource отдаёт итог последнего прохода диспетчера.
type PassSource interface {
	LastPass() domain.PassSummary
}

// Server — ops-поверхность демона: здоровье, статус блокировки, метрики.
type Server struct {
	Router chi.Router
	log    zerolog.Logger
}

// NewServer создаёт HTTP сервер со статусными эндпоинтами.
func NewServer(logger zerolog.Logger, locks domain.LockRepo, passes PassSource, staleAfter time.Duration) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		resp := map[string]any{"lock": nil}
		lock, err := locks.GetLock(req.Context())
		switch {
		case err == nil:
			now := time.Now().UTC()
			resp["lock"] = map[string]any{
				"holder":        lock.HolderID,
				"hostname":      lock.Hostname,
				"pid":           lock.PID,
				"heartbeat_at":  lock.HeartbeatAt,
				"heartbeat_age": now.Sub(lock.HeartbeatAt).String(),
				"stale":         lock.Stale(now, staleAfter),
			}
		case errors.Is(err, domain.ErrLockNotFound):
			// Демон не запущен или корректно завершился.
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		if passes != nil {
			last := passes.LastPass()
			if last.PassID != "" {
				resp["last_pass"] = map[string]any{
					"pass_id":     last.PassID,
					"started_at":  last.StartedAt,
					"finished_at": last.FinishedAt,
					"processed":   last.Processed,
				}
			}
		}
		writeJSON(w, resp)
	})

	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		promhttp.Handler().ServeHTTP(w, req)
	})

	return &Server{Router: r, log: logger}
}

// Start запускает http.Server и закрывает его при отмене контекста.
func (s *Server) Start(ctx context.Context, addr string) {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("ops: graceful shutdown failed")
		}
	}()
	go func() {
		s.log.Info().Str("addr", addr).Msg("ops: HTTP сервер запущен")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("ops: HTTP сервер остановлен")
		}
	}()
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
