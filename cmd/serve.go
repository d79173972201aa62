package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/hr-interview-bot/internal/bot"
	"github.com/spigell/hr-interview-bot/internal/metrics"
	"github.com/spigell/hr-interview-bot/internal/secrets"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Telegram bot",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, config := setup()
	logger.Info("starting the hr-interview-bot",
		zap.String("version", version),
		zap.String("mode", config.Telegram.Mode),
		zap.String("ai_provider", config.AI.Provider),
	)

	metrics.Register()

	eng, err := newEngine(ctx, config, logger)
	if err != nil {
		logger.Fatal("building the interview engine", zap.Error(err))
	}
	defer eng.close()

	token, err := secrets.Load(secrets.Source{
		Name:  "telegram token",
		Value: config.Telegram.Token,
		Env:   "HRBOT_TELEGRAM_TOKEN",
		File:  config.Telegram.TokenFile,
	})
	if err != nil {
		logger.Fatal("loading telegram token",
			zap.Error(err),
			zap.String("hint", "set HRBOT_TELEGRAM_TOKEN or the 'telegram.token-file' key in the configuration file"),
		)
	}

	tg, err := bot.NewTelegram(token, logger)
	if err != nil {
		logger.Fatal("connecting to telegram", zap.Error(err))
	}

	handler := bot.NewHandler(bot.Deps{
		Store:       eng.store,
		Catalog:     eng.catalog,
		Interviewer: eng.controller,
		Evaluator:   eng.evaluator,
		Messenger:   tg,
		Logger:      logger,
	})
	// Failures are logged and answered by the handler itself.
	handle := func(ctx context.Context, u bot.Update) {
		_ = handler.HandleUpdate(ctx, u)
	}

	g, gctx := errgroup.WithContext(ctx)

	var server *http.Server
	switch config.Telegram.Mode {
	case modeWebhook:
		secret := config.Telegram.Webhook.SecretToken
		if err := tg.SetWebhook(config.Telegram.Webhook.URL, secret); err != nil {
			logger.Fatal("registering webhook", zap.Error(err))
		}
		server = &http.Server{
			Addr:              config.Telegram.Webhook.Listen,
			Handler:           bot.NewRouter(secret, handle, logger),
			ReadHeaderTimeout: 10 * time.Second,
		}
	default:
		g.Go(func() error {
			return tg.Poll(gctx, config.Telegram.PollTimeout, handle)
		})
		if config.Metrics.Listen != "" {
			server = &http.Server{
				Addr:              config.Metrics.Listen,
				Handler:           bot.NewRouter("", nil, logger),
				ReadHeaderTimeout: 10 * time.Second,
			}
		}
	}

	if server != nil {
		g.Go(func() error {
			logger.Info("http server listening", zap.String("addr", server.Addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Fatal("bot stopped", zap.Error(err))
	}
	logger.Info("bot stopped")
}
