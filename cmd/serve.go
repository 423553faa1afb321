package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/trialscope/internal/artifact"
	"github.com/sells-group/trialscope/internal/model"
	"github.com/sells-group/trialscope/internal/pipeline"
	"github.com/sells-group/trialscope/internal/runs"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web API for submitting and polling runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		api := &apiServer{env: env, baseCtx: ctx}

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
		r.Post("/api/run", api.handleSubmit)
		r.Get("/api/status/{run_id}", api.handleStatus)
		r.Get("/api/results/{run_id}", api.handleResults)
		r.Get("/api/storage/check", api.handleStorageCheck)

		fileServer := http.StripPrefix("/files/", http.FileServer(http.Dir(env.LocalRoot)))
		r.Get("/files/*", fileServer.ServeHTTP)

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
			_ = srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

type apiServer struct {
	env     *pipelineEnv
	baseCtx context.Context
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Disease           string `json:"disease"`
		MaxTrials         int    `json:"max_trials"`
		YearsBack         int    `json:"years_back"`
		IndustryOnly      *bool  `json:"industry_only"`
		FinancialAnalysis bool   `json:"financial_analysis"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.MaxTrials == 0 {
		req.MaxTrials = 100
	}
	if req.YearsBack == 0 {
		req.YearsBack = 10
	}
	industryOnly := true
	if req.IndustryOnly != nil {
		industryOnly = *req.IndustryOnly
	}

	params := model.RunParams{
		Disease:           req.Disease,
		MaxTrials:         req.MaxTrials,
		YearsBack:         req.YearsBack,
		IndustryOnly:      industryOnly,
		FinancialAnalysis: req.FinancialAnalysis,
	}
	if err := validateParams(params); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	runID := s.env.Runner.Submit(params)

	// The run outlives the request; it is bounded by the report timeout and
	// cancelled on server shutdown.
	go func() {
		runCtx := s.baseCtx
		if timeout := cfg.Pipeline.ReportTimeout(); timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(s.baseCtx, timeout)
			defer cancel()
		}
		if err := s.env.Runner.Execute(runCtx, runID); err != nil {
			zap.L().Error("run failed", zap.String("run_id", runID), zap.Error(err))
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"run_id": runID,
		"status": string(model.RunStatusQueued),
	})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookup(w, r)
	if !ok {
		return
	}

	resp := map[string]any{
		"status":     rec.Status,
		"start_time": rec.StartTime,
	}
	if rec.EndTime != nil {
		resp["end_time"] = rec.EndTime
	}
	if rec.Error != "" {
		resp["error"] = rec.Error
	}
	if rec.StorageError != "" {
		resp["storage_error"] = rec.StorageError
	}
	if len(rec.Warnings) > 0 {
		resp["warnings"] = rec.Warnings
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleResults(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookup(w, r)
	if !ok {
		return
	}

	if !rec.Terminal() {
		writeJSON(w, http.StatusConflict, map[string]string{
			"status": string(rec.Status),
			"error":  "run has not finished",
		})
		return
	}

	// An errored run may still hold artifacts from the stages that finished;
	// return whatever exists alongside the error.
	files := make([]map[string]string, 0, len(rec.Files))
	for path, url := range rec.Files {
		files = append(files, map[string]string{
			"path": path,
			"name": pipeline.ArtifactDisplayName(path),
			"url":  url,
		})
	}
	resp := map[string]any{
		"status":        rec.Status,
		"params":        rec.Params,
		"files":         files,
		"storage_error": rec.StorageError,
		"warnings":      rec.Warnings,
	}
	if rec.Error != "" {
		resp["error"] = rec.Error
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleStorageCheck(w http.ResponseWriter, r *http.Request) {
	if err := artifact.SelfTest(r.Context(), s.env.Artifacts); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *apiServer) lookup(w http.ResponseWriter, r *http.Request) (model.RunRecord, bool) {
	runID := chi.URLParam(r, "run_id")
	rec, err := s.env.Registry.Get(runID)
	if err == runs.ErrNotFound {
		writeJSON(w, http.StatusNotFound, map[string]string{"status": "not_found"})
		return model.RunRecord{}, false
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return model.RunRecord{}, false
	}
	return rec, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
