package workers

import (
	"chat-relay/errors"
	"context"
	"log/slog"
	"net/http"
	"time"
)

// HTTPServerWorker serves HTTP until its context is cancelled, then shuts the
// server down gracefully. A listener failure is returned so the supervisor retries.
type HTTPServerWorker struct {
	server          *http.Server
	shutdownTimeout time.Duration
	log             *slog.Logger
}

func NewHTTPServerWorker(server *http.Server, shutdownTimeout time.Duration, log *slog.Logger) *HTTPServerWorker {
	return &HTTPServerWorker{server: server, shutdownTimeout: shutdownTimeout, log: log}
}

func (w *HTTPServerWorker) Run(ctx context.Context) error {
	served := make(chan error, 1)
	go func() {
		w.log.Info("Starting HTTP server", "address", w.server.Addr)
		served <- w.server.ListenAndServe()
	}()

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), w.shutdownTimeout)
		defer cancel()
		if err := w.server.Shutdown(shutdownCtx); err != nil {
			w.log.Warn("HTTP server not stopped gracefully", "error", err)
		}
		<-served
		w.log.Info("HTTP server stopped")
		return ctx.Err()
	}
}
