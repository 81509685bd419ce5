// Package relay serves the Graph notification endpoint: it answers
// subscription validation handshakes and acknowledges notification
// deliveries after handing them to intake.
package relay

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/kal997/graph-notification-relay/internal/intake"
)

const validationTokenParam = "validationToken"

// Processor runs intake on a delivery body
type Processor interface {
	Process(body []byte) intake.BatchResult
}

// Handler is the notification endpoint. Every request that is not a
// validation handshake is acknowledged with 202, whatever intake made of it,
// so that application-level rejections never trigger notifier retries.
type Handler struct {
	processor Processor
	maxBody   int64
	logger    *slog.Logger
}

func NewHandler(processor Processor, maxBody int64, logger *slog.Logger) *Handler {
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		processor: processor,
		maxBody:   maxBody,
		logger:    logger,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if token, ok := validationToken(r); ok {
		h.logger.Info("answering subscription validation", "method", r.Method, "remote", r.RemoteAddr)
		writeToken(w, token)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		h.logger.Warn("discarding unreadable notification body",
			"method", r.Method, "remote", r.RemoteAddr, "error", err)
	} else {
		result := h.processor.Process(body)
		h.logger.Debug("delivery acknowledged",
			"batch", result.BatchID, "accepted", result.Accepted, "total", result.Total())
	}

	w.WriteHeader(http.StatusAccepted)
}

// validationToken reports the decoded token if the request carries one,
// regardless of method or body.
func validationToken(r *http.Request) (string, bool) {
	values, ok := r.URL.Query()[validationTokenParam]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

func writeToken(w http.ResponseWriter, token string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, token)
}
