package httpserver

import (
	"log/slog"
	"net/http"
	"time"
)

const maxHeaderBytes = 64 << 10

// New builds the portal's HTTP server. WriteTimeout leaves room for 5 MiB
// document uploads on slow links; server errors go to logger.
func New(addr string, handler http.Handler, logger *slog.Logger) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    maxHeaderBytes,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}
}
