package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/BearBump/RekaTrack/config"
	"github.com/BearBump/RekaTrack/internal/integrations/location"
	"github.com/BearBump/RekaTrack/internal/services/updater"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	httpSwagger "github.com/swaggo/http-swagger"
)

// taskUpdates is the part of updater.Manager the control API drives.
type taskUpdates interface {
	location.Updates
	Trigger(task string) bool
	Tasks() []updater.TaskInfo
	Stats() updater.Stats
}

type agentHTTPOpts struct {
	httpAddr    string
	swaggerPath string
	onListen    func(httpAddr string)

	updates taskUpdates
	cfg     *config.Config
}

type taskState struct {
	Name    string `json:"name"`
	Started bool   `json:"started"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

// applyAgentOverrides подменяет параметры фильтра значениями из конфига агента.
func applyAgentOverrides(opts location.UpdateOptions, cfg *config.Config) location.UpdateOptions {
	if cfg == nil {
		return opts
	}
	if v := cfg.Agent.DistanceIntervalMeters; v > 0 {
		opts.DistanceIntervalMeters = v
	}
	if v := cfg.Agent.DeferredDistanceMeters; v > 0 {
		opts.DeferredDistanceMeters = v
	}
	if v := cfg.Agent.DeferredIntervalSeconds; v > 0 {
		opts.DeferredIntervalMs = int64(v) * 1000
	}
	return opts
}

func newAgentRouter(opts agentHTTPOpts) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, opts.updates.Stats())
	})

	r.Get("/config", func(w http.ResponseWriter, r *http.Request) {
		if opts.cfg == nil {
			writeError(w, http.StatusServiceUnavailable, "config not wired")
			return
		}
		// без секретов: только параметры агента
		writeJSON(w, http.StatusOK, map[string]any{
			"sampleIntervalSeconds":    opts.cfg.Agent.SampleIntervalSeconds,
			"distanceIntervalMeters":   opts.cfg.Agent.DistanceIntervalMeters,
			"deferredDistanceMeters":   opts.cfg.Agent.DeferredDistanceMeters,
			"deferredIntervalSeconds":  opts.cfg.Agent.DeferredIntervalSeconds,
			"reportRateLimitPerMinute": opts.cfg.RekaTrack.ReportRateLimitPerMinute,
			"apiBaseUrl":               opts.cfg.RekaTrack.APIBaseURL,
		})
	})

	r.Get("/tasks", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, opts.updates.Tasks())
	})

	r.Route("/tasks/{name}", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			name := chi.URLParam(r, "name")
			started, err := opts.updates.HasStarted(r.Context(), name)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			writeJSON(w, http.StatusOK, taskState{Name: name, Started: started})
		})

		r.Put("/", func(w http.ResponseWriter, r *http.Request) {
			name := chi.URLParam(r, "name")
			var uo location.UpdateOptions
			if err := json.NewDecoder(r.Body).Decode(&uo); err != nil {
				writeError(w, http.StatusBadRequest, "invalid update options")
				return
			}
			err := opts.updates.Start(r.Context(), name, applyAgentOverrides(uo, opts.cfg))
			if errors.Is(err, updater.ErrUnknownTask) {
				writeError(w, http.StatusNotFound, err.Error())
				return
			}
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			writeJSON(w, http.StatusOK, taskState{Name: name, Started: true})
		})

		r.Delete("/", func(w http.ResponseWriter, r *http.Request) {
			name := chi.URLParam(r, "name")
			if err := opts.updates.Stop(r.Context(), name); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			writeJSON(w, http.StatusOK, taskState{Name: name, Started: false})
		})

		r.Post("/trigger", func(w http.ResponseWriter, r *http.Request) {
			name := chi.URLParam(r, "name")
			if !opts.updates.Trigger(name) {
				writeError(w, http.StatusNotFound, "task is not running")
				return
			}
			writeJSON(w, http.StatusOK, map[string]bool{"triggered": true})
		})
	})

	r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		http.ServeFile(w, r, opts.swaggerPath)
	})

	swaggerURL := "/swagger.json"
	if fi, err := os.Stat(opts.swaggerPath); err == nil {
		swaggerURL = fmt.Sprintf("/swagger.json?v=%d", fi.ModTime().Unix())
	}
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL(swaggerURL)))

	return r
}

func runAgentHTTPServer(ctx context.Context, opts agentHTTPOpts) error {
	if opts.httpAddr == "" {
		opts.httpAddr = "127.0.0.1:8082"
	}
	if opts.swaggerPath == "" {
		return fmt.Errorf("agent swaggerPath env var is required")
	}
	if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
		return fmt.Errorf("agent swagger file not found: %s", opts.swaggerPath)
	}
	if opts.updates == nil {
		return fmt.Errorf("agent updates are not wired")
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	slog.Info("tracer agent listening", "addr", lis.Addr().String())
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	srv := &http.Server{Handler: newAgentRouter(opts)}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
