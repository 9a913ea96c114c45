package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"mailscore/internal/artifact"
	"mailscore/internal/cfg"
	"mailscore/internal/featurestore"
	"mailscore/internal/metrics"
	"mailscore/internal/predict"
	"mailscore/internal/registry"
	"mailscore/internal/server"
	"mailscore/internal/train"
)

func main() {
	trainOnly := flag.Bool("train", false, "run a training cycle and exit")
	flag.Parse()

	_ = godotenv.Load()
	setupLogging()

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	sink := metrics.NewSink(m)

	store, err := artifact.NewBoltStore(c.DataPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", c.DataPath).Msg("artifact store open failed")
	}
	defer store.Close()

	fs := initializeFeatureStore(ctx, c, m)
	if fs != nil {
		defer fs.Close()
	}

	trainer := initializeTrainer(c, fs, store)

	if *trainOnly {
		if trainer == nil {
			log.Fatal().Msg("training requires DATABASE_URL")
		}
		runTraining(ctx, trainer, m)
		return
	}

	if c.TrainOnStart && trainer != nil {
		runTraining(ctx, trainer, m)
	}

	scorer, err := predict.NewScorer(store, sink, c.CacheSize)
	if err != nil {
		log.Fatal().Err(err).Msg("scorer initialization failed")
	}
	planner := predict.NewPlanner(store, sink)

	srv := server.New(scorer, planner, store, c.ListenPort, c.RequestTimeout)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server failed")
			cancel()
		}
	}()

	waitForShutdown(ctx, srv)
}

func setupLogging() {
	level := zerolog.InfoLevel
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		if parsed, err := zerolog.ParseLevel(v); err == nil {
			level = parsed
		}
	}
	zerolog.SetGlobalLevel(level)
}

// initializeFeatureStore connects to the feature store when DATABASE_URL is
// configured. Without it the service serves predictions from stored artifacts
// only.
func initializeFeatureStore(ctx context.Context, c cfg.Settings, m *metrics.Metrics) *featurestore.Store {
	if c.DatabaseURL == "" {
		log.Info().Msg("no database configured, training disabled")
		return nil
	}
	fs, err := featurestore.New(ctx, c.DatabaseURL, m.FeatureStoreErrors)
	if err != nil {
		log.Warn().Err(err).Msg("feature store connection failed, training disabled")
		return nil
	}
	return fs
}

func initializeTrainer(c cfg.Settings, fs *featurestore.Store, store artifact.Store) *train.Trainer {
	if fs == nil {
		return nil
	}

	var reg train.Registrar
	if c.RegistryURL != "" {
		reg = registry.NewClient(c.RegistryURL, c.RegistryTimeout)
	}

	trainCfg := train.DefaultConfig()
	trainCfg.MinSamples = c.MinSamples
	trainCfg.MinSlotGroups = c.MinSlotGroups
	trainCfg.MinSlotSamples = c.MinSlotSamples

	return train.New(fs, store, reg, trainCfg)
}

func runTraining(ctx context.Context, trainer *train.Trainer, m *metrics.Metrics) {
	m.TrainingRuns.Inc()

	if _, err := trainer.TrainConversionModel(ctx); err != nil {
		log.Error().Err(err).Msg("conversion model training failed")
	}
	if _, err := trainer.TrainSendTimeModel(ctx); err != nil {
		log.Error().Err(err).Msg("send time model training failed")
	}
}

// waitForShutdown waits for shutdown signals and drains the HTTP server.
func waitForShutdown(ctx context.Context, srv *server.Server) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("context canceled")
	}

	log.Info().Msg("shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("server shutdown timed out")
	}
}
