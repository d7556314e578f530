package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jye-lim/wav2vec2-asr/internal/acoustic"
	"github.com/jye-lim/wav2vec2-asr/internal/config"
	"github.com/jye-lim/wav2vec2-asr/internal/gateway"
	"github.com/jye-lim/wav2vec2-asr/internal/logging"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the inference gateway (GET /ping, POST /asr)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			if strings.TrimSpace(bind) != "" {
				cfg.Gateway.Bind = strings.TrimSpace(bind)
			}

			svc, err := buildGatewayService(cfg, logger)
			if err != nil {
				return err
			}
			server := gateway.NewServer(svc, gateway.ServerOptions{
				Bind:        cfg.Gateway.Bind,
				MaxBodySize: cfg.Gateway.MaxBodyMB << 20,
				Logger:      logger,
			})

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := server.Start(runCtx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Gateway listening on http://%s (model %s)\n", server.Addr(), cfg.Model.ID)

			<-runCtx.Done()
			server.Stop()
			logger.Info("gateway stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "", "Override the listen address")
	return cmd
}

// buildGatewayService loads the model backend and vocabulary described by cfg.
func buildGatewayService(cfg *config.Config, logger *slog.Logger) (*gateway.Service, error) {
	model, err := acoustic.NewRemote(acoustic.RemoteConfig{
		Endpoint:   cfg.Model.Endpoint,
		ModelID:    cfg.Model.ID,
		Timeout:    seconds(cfg.Model.TimeoutSeconds),
		Concurrent: cfg.Model.Concurrent,
	})
	if err != nil {
		return nil, err
	}

	vocab := acoustic.DefaultVocabulary()
	if path := strings.TrimSpace(cfg.Model.VocabularyPath); path != "" {
		vocab, err = acoustic.LoadVocabulary(path)
		if err != nil {
			return nil, err
		}
	}

	logger.Info("acoustic model configured",
		logging.String("model_id", cfg.Model.ID),
		logging.String("endpoint", cfg.Model.Endpoint),
		logging.Int("vocabulary_size", vocab.Size()),
		logging.Bool("concurrent", cfg.Model.Concurrent),
	)

	return gateway.NewService(model,
		gateway.WithVocabulary(vocab),
		gateway.WithTargetRate(cfg.Model.TargetSampleRate),
		gateway.WithLogger(logger),
	)
}
