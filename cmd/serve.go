package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/clinical-extract/internal/model"
	"github.com/sells-group/clinical-extract/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the extraction HTTP server",
	Long: `Serve exposes extraction over HTTP. POST /extract accepts a document
and runs the extraction asynchronously; GET /health reports liveness.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

type extractRequest struct {
	DocumentID string   `json:"document_id"`
	Text       string   `json:"text"`
	Types      []string `json:"types,omitempty"`
	Provider   string   `json:"provider,omitempty"`
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           buildMux(st),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return eris.Wrap(err, "server listen")
	case <-ctx.Done():
		zap.L().Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// buildMux wires the HTTP routes. Split out so handlers are testable
// without a listening server.
func buildMux(st store.Store) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"ok"}`)
	})
	mux.HandleFunc("POST /extract", handleExtract(st))
	return mux
}

func handleExtract(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req extractRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		if req.Text == "" {
			http.Error(w, "text is required", http.StatusBadRequest)
			return
		}
		if req.DocumentID == "" {
			http.Error(w, "document_id is required", http.StatusBadRequest)
			return
		}

		targets, err := resolveTargets(req.Types)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		p, err := newProvider(req.Provider)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		doc := model.NewDocument(req.DocumentID, req.Text)
		run := newRunner(p, st, targets)

		// The request context dies when the response is written, so the
		// extraction runs on its own background context.
		go func() {
			if _, err := run.ExtractDocument(context.Background(), doc); err != nil {
				zap.L().Error("extraction failed",
					zap.String("document", req.DocumentID), zap.Error(err))
				return
			}
			zap.L().Info("extraction complete", zap.String("document", req.DocumentID))
		}()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{
			"status":      "accepted",
			"document_id": req.DocumentID,
		})
	}
}
