package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/naresh-chaudhary/tw-tasks-executor/application"
	"github.com/naresh-chaudhary/tw-tasks-executor/config"
	"github.com/naresh-chaudhary/tw-tasks-executor/config/source/file"
	"github.com/naresh-chaudhary/tw-tasks-executor/engine"
	"github.com/naresh-chaudhary/tw-tasks-executor/kafka/producer"
	"github.com/naresh-chaudhary/tw-tasks-executor/logger"
	"github.com/naresh-chaudhary/tw-tasks-executor/pgrepo"
	"github.com/naresh-chaudhary/tw-tasks-executor/processing"
	"github.com/naresh-chaudhary/tw-tasks-executor/taskstore"
	"github.com/naresh-chaudhary/tw-tasks-executor/triggering"
)

func main() {
	log, err := logger.New(
		logger.WithLevel(logger.LevelDebug),
		logger.WithDevelopmentConfig(),
	)
	die(err)

	ctx := context.Background()

	start := time.Now()
	log.Debug(ctx, "start")
	defer func() { log.Debug(ctx, "stop", "in", time.Since(start)) }()

	var cfg struct {
		DB               pgrepo.Config          `yaml:"db"`
		MessagesProducer producer.Config        `yaml:"messages_producer"`
		Triggering       triggering.Config      `yaml:"triggering"`
		Task             taskstore.Config       `yaml:"task"`
		Resurrection     taskstore.ScannerConfig `yaml:"resurrection"`
		Brokers          []string               `yaml:"brokers"`
	}
	die(config.New().With(file.YAML("config.yaml")).Scan(&cfg))

	db, err := pgrepo.New(pgrepo.WithLogger(log.New("pgrepo")), pgrepo.WithConfig(cfg.DB))
	die(err)

	prod, err := producer.New(
		producer.WithLogger(log.New("producer")),
		producer.WithConfig(cfg.MessagesProducer),
	)
	die(err)

	// The real task-processing engine is out of scope for this core;
	// this executor stands in for it until one is wired in.
	executor := processing.Executor(func(ctx context.Context, t triggering.TaskTriggering) error {
		log.Info(ctx, "processing task", "bucket", t.BucketID, "task_id", t.Task.ID, "type", t.Task.Type)
		return nil
	})

	// email/sms are placeholder task types routing into the default
	// bucket; a real deployment supplies its own registry.
	registry := triggering.StaticRegistry{
		"email": triggering.BucketHandler(triggering.DefaultBucketID),
		"sms":   triggering.BucketHandler(triggering.DefaultBucketID),
	}

	// Reject any Trigger call made from inside an active transaction:
	// callers should trigger after their transaction commits, not from
	// within it.
	precondition := func(ctx context.Context) error {
		if _, inTx := pgrepo.GetTx(ctx); inTx {
			return fmt.Errorf("trigger called from within an active transaction")
		}
		return nil
	}

	reg := prometheus.NewRegistry()
	eng, err := engine.New(
		engine.Config{
			Triggering:   cfg.Triggering,
			Brokers:      cfg.Brokers,
			Task:         cfg.Task,
			Resurrection: cfg.Resurrection,
		},
		registry,
		executor,
		db,
		prod,
		reg,
		log.New("engine"),
		precondition,
	)
	die(err)

	app, err := application.New(
		application.WithLogger(log.New("application")),
		application.WithName("tw-tasks-executor"),
		application.WithComponents(
			application.NewLifecycleComponent("db", db),
			application.NewLifecycleComponent("producer", prod),
			eng,
		),
	)
	die(err)

	die(app.Run(ctx))
}

func die(args ...any) {
	if len(args) == 0 {
		return
	}
	if err, ok := args[len(args)-1].(error); ok && err != nil {
		_, file, line, _ := runtime.Caller(1)
		fmt.Printf("%s:%d: %s", file, line, err.Error())
		os.Exit(1)
	}
}
