package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmehdipour/wx-ci/internal/config"
	"github.com/jmehdipour/wx-ci/internal/db"
	"github.com/jmehdipour/wx-ci/internal/kafka"
	"github.com/jmehdipour/wx-ci/internal/logger"
	"github.com/jmehdipour/wx-ci/internal/repository"
	"github.com/jmehdipour/wx-ci/internal/worker"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var recorderCmd = &cobra.Command{
	Use:   "recorder",
	Short: "Consume run events from Kafka into the history store",
	RunE:  runRecorder,
}

func runRecorder(cmd *cobra.Command, args []string) error {
	// 1) load config
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgPath, "", "")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := cfg.Log.Level
	if l, _ := cmd.Root().PersistentFlags().GetString("log-level"); l != "" {
		level = l
	}
	logger.Init(level, cfg.Log.Encoding)
	defer func() { _ = logger.Log.Sync() }()

	kc := cfg.KafkaOpts()
	if !kc.Enabled() {
		return fmt.Errorf("kafka.brokers is not configured")
	}
	if cfg.History.Driver == "" {
		return fmt.Errorf("history.driver is not configured")
	}

	// 2) history store
	dbx, err := db.Open(cfg.HistoryOpts())
	if err != nil {
		return fmt.Errorf("%s connect: %w", cfg.History.Driver, err)
	}
	defer dbx.Close()

	runs := repository.NewRunsRepository(dbx)
	if err := runs.Migrate(cmd.Context()); err != nil {
		return err
	}

	// 3) kafka consumer
	consumer := kafka.NewConsumerFromConfig(kc)
	defer consumer.Close()

	w := worker.NewRecorder(consumer, runs, logger.Log.Named("recorder"))
	if cfg.Recorder.BatchSize > 0 {
		w.BatchSize = cfg.Recorder.BatchSize
	}
	if cfg.Recorder.BatchWait > 0 {
		w.BatchWait = cfg.Recorder.BatchWait
	}

	// 4) graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Log.Info("recorder started",
		zap.Strings("brokers", kc.Brokers),
		zap.String("topic", kc.Topic),
		zap.String("group", kc.GroupID),
		zap.Int("batch_size", w.BatchSize),
		zap.Duration("batch_wait", w.BatchWait),
	)

	return w.Run(ctx)
}
