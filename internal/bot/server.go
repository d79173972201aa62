package bot

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/spigell/hr-interview-bot/internal/metrics"
)

// WebhookPath is where Telegram delivers updates in webhook mode.
const WebhookPath = "/telegram/webhook"

// NewRouter serves health and metrics endpoints and, when handle is not nil,
// the Telegram webhook. Each delivery is handled before the response is written.
func NewRouter(secret string, handle func(context.Context, Update), log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(metrics.HTTPMetricsMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	if handle != nil {
		r.Post(WebhookPath, webhookHandler(secret, handle, log))
	}
	return r
}

func webhookHandler(secret string, handle func(context.Context, Update), log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if secret != "" {
			got := r.Header.Get(SecretTokenHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
		}

		var raw tgbotapi.Update
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&raw); err != nil {
			log.Warn("invalid webhook payload", zap.Error(err))
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		if u, ok := FromTelegram(raw); ok {
			handle(r.Context(), u)
		}
		w.WriteHeader(http.StatusOK)
	}
}
