package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pagewatch/internal/config"
	"github.com/sells-group/pagewatch/internal/journal"
	"github.com/sells-group/pagewatch/internal/model"
	"github.com/sells-group/pagewatch/internal/pipeline"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve HTTP endpoints for triggering and inspecting runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		addr := serveAddr
		if addr == "" {
			addr = cfg.Server.Addr
		}

		srv := &http.Server{
			Addr:    addr,
			Handler: newRouter(ctx, env.Pipeline, env.Journal, cfg.Sites),
		}

		// Graceful shutdown; triggered runs keep the signal context, so
		// an in-flight run finishes its sites before the process exits.
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutCtx)
		}()

		zap.L().Info("starting server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// runTrigger starts a pipeline run. *pipeline.Pipeline satisfies it;
// tests substitute a stub.
type runTrigger interface {
	Run(ctx context.Context, sites []config.Site) *pipeline.Result
}

// newRouter builds the HTTP surface. runCtx outlives individual
// requests; triggered runs are bound to it so shutting the server down
// does not abandon a run mid-flight.
func newRouter(runCtx context.Context, trigger runTrigger, jrnl journal.Store, sites []config.Site) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	// One run at a time. TryLock keeps the handler non-blocking so a
	// second trigger gets an immediate 409 instead of queueing.
	var busy sync.Mutex

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/v1/runs", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Sites []string `json:"sites"`
		}
		if req.ContentLength > 0 {
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
				return
			}
		}

		selected, err := resolveSites(sites, body.Sites)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		if !busy.TryLock() {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "run already in progress"})
			return
		}

		go func() {
			defer busy.Unlock()

			result := trigger.Run(runCtx, selected)

			var changed, failed int
			for _, o := range result.Outcomes {
				switch o.Status {
				case model.StatusChanged:
					changed++
				case model.StatusFailed:
					failed++
				}
			}
			zap.L().Info("triggered run complete",
				zap.String("run_id", result.RunID),
				zap.Int("sites", len(result.Outcomes)),
				zap.Int("changed", changed),
				zap.Int("failed", failed),
			)
		}()

		writeJSON(w, http.StatusAccepted, map[string]any{
			"status": "accepted",
			"sites":  len(selected),
		})
	})

	r.Get("/v1/runs", func(w http.ResponseWriter, req *http.Request) {
		limit := 20
		if q := req.URL.Query().Get("limit"); q != "" {
			n, err := strconv.Atoi(q)
			if err != nil || n < 1 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
				return
			}
			limit = n
		}

		runs, err := jrnl.ListRuns(req.Context(), limit)
		if err != nil {
			zap.L().Error("list runs", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "journal unavailable"})
			return
		}
		if runs == nil {
			runs = []journal.Run{}
		}

		writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
