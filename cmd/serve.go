package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/streeteats/ingest-cli/internal/model"
	"github.com/streeteats/ingest-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ingestion HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))

		r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Post("/api/jobs", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				URL      string `json:"url"`
				Priority int    `json:"priority"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			if body.URL == "" {
				writeError(w, http.StatusBadRequest, "url is required")
				return
			}

			job, err := env.Store.CreateJob(req.Context(), body.URL, body.Priority, time.Now().UTC())
			if err != nil {
				zap.L().Error("api: create job failed", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "create job failed")
				return
			}
			writeJSON(w, http.StatusCreated, job)
		})

		r.Get("/api/jobs/{id}", func(w http.ResponseWriter, req *http.Request) {
			job, err := env.Store.GetJob(req.Context(), chi.URLParam(req, "id"))
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "job not found")
				return
			}
			if err != nil {
				zap.L().Error("api: get job failed", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "get job failed")
				return
			}
			writeJSON(w, http.StatusOK, job)
		})

		r.Post("/api/runs", func(w http.ResponseWriter, req *http.Request) {
			// The run is driven by the server's lifecycle, not the request's.
			go func() {
				summary, err := env.Coordinator.Run(ctx)
				if err != nil {
					zap.L().Error("api: ingestion run failed", zap.Error(err))
					return
				}
				zap.L().Info("api: ingestion run finished",
					zap.Int("processed", summary.Processed),
					zap.Int("failed", summary.Failed),
				)
			}()
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
		})

		r.Get("/api/trucks", func(w http.ResponseWriter, req *http.Request) {
			q := req.URL.Query()
			filter := store.TruckFilter{Limit: 50}
			if v := q.Get("min_score"); v != "" {
				f, err := strconv.ParseFloat(v, 64)
				if err != nil {
					writeError(w, http.StatusBadRequest, "invalid min_score")
					return
				}
				filter.MinQualityScore = f
			}
			if v := q.Get("status"); v != "" {
				filter.VerificationStatus = model.VerificationStatus(v)
			}
			if v := q.Get("limit"); v != "" {
				n, err := strconv.Atoi(v)
				if err != nil || n < 0 {
					writeError(w, http.StatusBadRequest, "invalid limit")
					return
				}
				filter.Limit = n
			}
			if v := q.Get("offset"); v != "" {
				n, err := strconv.Atoi(v)
				if err != nil || n < 0 {
					writeError(w, http.StatusBadRequest, "invalid offset")
					return
				}
				filter.Offset = n
			}

			trucks, err := env.Store.ListTrucks(req.Context(), filter)
			if err != nil {
				zap.L().Error("api: list trucks failed", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "list trucks failed")
				return
			}
			writeJSON(w, http.StatusOK, trucks)
		})

		r.Get("/api/trucks/{id}", func(w http.ResponseWriter, req *http.Request) {
			truck, err := env.Store.GetTruck(req.Context(), chi.URLParam(req, "id"))
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "truck not found")
				return
			}
			if err != nil {
				zap.L().Error("api: get truck failed", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "get truck failed")
				return
			}
			writeJSON(w, http.StatusOK, truck)
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
