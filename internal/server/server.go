package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"DynamicVault/internal/model"
)

// VaultReader is the read side of the vault registry.
type VaultReader interface {
	Snapshot(key solana.PublicKey) (model.Vault, bool)
	List() []model.Vault
}

// NewRouter builds the keeper status surface.
func NewRouter(vaults VaultReader, gatherer prometheus.Gatherer, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/vaults", func(sr chi.Router) {
		sr.Get("/", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, log, http.StatusOK, vaults.List())
		})
		sr.Get("/{admin}", func(w http.ResponseWriter, r *http.Request) {
			key, err := solana.PublicKeyFromBase58(chi.URLParam(r, "admin"))
			if err != nil {
				writeJSON(w, log, http.StatusBadRequest, map[string]string{"error": "invalid admin key"})
				return
			}
			v, ok := vaults.Snapshot(key)
			if !ok {
				writeJSON(w, log, http.StatusNotFound, map[string]string{"error": "vault not found"})
				return
			}
			writeJSON(w, log, http.StatusOK, v)
		})
	})
	return r
}

func writeJSON(w http.ResponseWriter, log *zap.Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn("write response", zap.Error(err))
	}
}

// Serve runs handler on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, handler http.Handler, log *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("status server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
