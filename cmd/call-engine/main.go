package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/call-engine/internal/analyze"
	"github.com/snarg/call-engine/internal/api"
	"github.com/snarg/call-engine/internal/audio"
	"github.com/snarg/call-engine/internal/config"
	"github.com/snarg/call-engine/internal/ingest"
	"github.com/snarg/call-engine/internal/notify"
	"github.com/snarg/call-engine/internal/pipeline"
	"github.com/snarg/call-engine/internal/queue"
	"github.com/snarg/call-engine/internal/store"
	"github.com/snarg/call-engine/internal/transcribe"
)

var version = "dev"

func main() {
	startTime := time.Now()

	var overrides config.Overrides
	flag.StringVar(&overrides.EnvFile, "env-file", "", "path to .env file")
	flag.StringVar(&overrides.HTTPAddr, "http-addr", "", "http listen address")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	flag.StringVar(&overrides.DatabaseURL, "database-url", "", "postgres connection string")
	flag.StringVar(&overrides.AudioDir, "audio-dir", "", "local audio directory")
	flag.BoolVar(&overrides.DevMode, "dev", false, "run with in-memory store and stub providers")
	flag.Parse()

	// Config
	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	// Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Bool("dev_mode", cfg.DevMode).Msg("call-engine starting")

	if !cfg.DevMode && cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is required outside dev mode")
	}

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Store
	var st store.Store
	var dbCheck func(context.Context) error
	if cfg.DevMode && cfg.DatabaseURL == "" {
		st = store.NewMemory()
		log.Info().Msg("using in-memory store")
	} else {
		dbLog := log.With().Str("component", "database").Logger()
		pg, err := store.Connect(ctx, cfg.DatabaseURL, dbLog)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pg.Close()
		if err := pg.InitSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to initialize schema")
		}
		st = pg
		dbCheck = pg.HealthCheck
	}

	// Audio source
	var src audio.Source
	if cfg.UseS3() {
		s3src, err := audio.NewS3Source(audio.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			Prefix:    cfg.S3Prefix,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		}, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create s3 audio source")
		}
		if err := s3src.HeadBucket(ctx); err != nil {
			log.Warn().Err(err).Str("bucket", cfg.S3Bucket).Msg("s3 bucket check failed")
		}
		src = s3src
		log.Info().Str("bucket", cfg.S3Bucket).Msg("using s3 audio source")
	} else {
		src = &audio.LocalDirSource{Dir: cfg.AudioDir}
		log.Info().Str("dir", cfg.AudioDir).Msg("using local audio source")
	}

	// Transcription providers
	registry := transcribe.NewRegistry()
	if cfg.WhisperURL != "" {
		registry.Register(transcribe.NewWhisperClient(cfg.WhisperURL, cfg.WhisperModel, cfg.HTTPTimeout))
	}
	if cfg.ElevenLabsKey != "" {
		registry.Register(transcribe.NewElevenLabsClient(cfg.ElevenLabsKey, cfg.ElevenLabsModel, cfg.HTTPTimeout))
	}
	if cfg.DevMode {
		registry.Register(&transcribe.StubProvider{})
	}
	if len(registry.Names()) == 0 {
		log.Fatal().Msg("no transcription providers configured")
	}
	log.Info().Strs("providers", registry.Names()).Msg("transcription providers registered")

	// Diarizer (optional, failures degrade to unknown speaker)
	var diarizer transcribe.Diarizer
	if cfg.DiarizerURL != "" {
		diarizer = &transcribe.SafeDiarizer{
			Inner: transcribe.NewHTTPDiarizer(cfg.DiarizerURL, cfg.SubStepTimeout),
			Log:   log.With().Str("component", "diarizer").Logger(),
		}
	}

	// Analyzer
	var analyzer analyze.Analyzer
	if cfg.LLMGatewayURL != "" {
		analyzer = analyze.NewLLMClient(cfg.LLMGatewayURL, cfg.LLMGatewayKey, cfg.LLMModel,
			cfg.SubStepTimeout, log.With().Str("component", "analyzer").Logger())
	} else if cfg.DevMode {
		analyzer = analyze.StubAnalyzer{}
		log.Info().Msg("using stub analyzer")
	} else {
		log.Fatal().Msg("LLM_GATEWAY_URL is required outside dev mode")
	}

	// Notifier
	var notifier notify.Notifier
	var mqttConnected func() bool
	if cfg.MQTTBrokerURL != "" {
		mqttLog := log.With().Str("component", "mqtt").Logger()
		mq, err := notify.ConnectMQTT(notify.MQTTOptions{
			BrokerURL:   cfg.MQTTBrokerURL,
			ClientID:    cfg.MQTTClientID,
			TopicPrefix: cfg.MQTTTopicPrefix,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
			Log:         mqttLog,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to mqtt broker")
		}
		defer mq.Close()
		notifier = mq
		mqttConnected = mq.IsConnected
	} else {
		notifier = &notify.LogNotifier{Log: log.With().Str("component", "notify").Logger()}
	}

	// Orchestrator and queue
	orch := pipeline.New(pipeline.Options{
		Store:             st,
		Audio:             src,
		Providers:         registry,
		Diarizer:          diarizer,
		Analyzer:          analyzer,
		Notifier:          notifier,
		Log:               log.With().Str("component", "pipeline").Logger(),
		TranscribeTimeout: cfg.TranscribeTimeout,
		PerAudioMinute:    cfg.PerAudioMinute,
		SubStepTimeout:    cfg.SubStepTimeout,
	})
	q := queue.New(queue.Options{
		Workers:        cfg.Workers,
		QueueSize:      cfg.QueueSize,
		MaxAttempts:    cfg.MaxAttempts,
		InitialBackoff: cfg.InitialBackoff,
		Handler:        orch.Handle,
		OnExhausted:    orch.OnExhausted,
		Log:            log.With().Str("component", "queue").Logger(),
	})
	orch.SetEnqueue(q.Enqueue)
	q.Start()

	// Drop-directory ingest (optional)
	var watcher *ingest.Watcher
	if cfg.IngestDir != "" {
		watcher = ingest.NewWatcher(ingest.Options{
			WatchDir:  cfg.IngestDir,
			AudioDir:  cfg.AudioDir,
			Store:     st,
			Submitter: orch,
			Log:       log,
		})
		if err := watcher.Start(); err != nil {
			log.Fatal().Err(err).Msg("failed to start ingest watcher")
		}
	}

	// HTTP Server
	httpLog := log.With().Str("component", "http").Logger()
	srv := api.NewServer(cfg, api.Deps{
		Store:         st,
		Pipeline:      orch,
		DBCheck:       dbCheck,
		MQTTConnected: mqttConnected,
		QueueStats:    q.Stats,
		Version:       version,
		StartTime:     startTime,
	}, httpLog)

	// Start HTTP server in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	// Graceful shutdown: stop intake first, drain the queue, then close
	// the HTTP server.
	if watcher != nil {
		watcher.Stop()
	}
	q.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("call-engine stopped")
}
