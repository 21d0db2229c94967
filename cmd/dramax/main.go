// Command dramax runs the scheduling/execution engine: either the HTTP
// ingestion surface (serve) or a pool of Worker Actors (worker), sharing
// the same config/state/broker/artifact wiring. Grounded in the teacher's
// cobra rootCmd + subcommand layout (cmd/main/main.go), trimmed to this
// engine's two real entrypoints.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/khaosresearch/dramax/internal/aggregator"
	"github.com/khaosresearch/dramax/internal/api"
	"github.com/khaosresearch/dramax/internal/artifact"
	"github.com/khaosresearch/dramax/internal/broker"
	"github.com/khaosresearch/dramax/internal/config"
	"github.com/khaosresearch/dramax/internal/db"
	"github.com/khaosresearch/dramax/internal/executor"
	"github.com/khaosresearch/dramax/internal/failuresink"
	"github.com/khaosresearch/dramax/internal/logging"
	"github.com/khaosresearch/dramax/internal/model"
	"github.com/khaosresearch/dramax/internal/runner"
	"github.com/khaosresearch/dramax/internal/scheduler"
	"github.com/khaosresearch/dramax/internal/state"
	"github.com/khaosresearch/dramax/internal/worker"
)

// defaultBackoffBase/Max bound the Worker Actor's defer republish delay
// (spec.md §5's optional bounded exponential backoff).
const (
	defaultBackoffBase = 2 * time.Second
	defaultBackoffMax  = 5 * time.Minute
)

var (
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "dramax",
		Short: "dramax workflow engine",
		Long:  "dramax schedules and executes declarative container/HTTP workflows against a shared broker, blob store, and state store.",
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP ingestion surface",
		RunE:  runServe,
	}

	workerCmd = &cobra.Command{
		Use:   "worker",
		Short: "Run a pool of Worker Actors consuming the default queue",
		RunE:  runWorker,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "env file with DRAMAX_* settings")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type system struct {
	cfg        *config.Config
	broker     *broker.Broker
	store      *state.Store
	aggregator *aggregator.Aggregator
	scheduler  *scheduler.Scheduler
	sink       *failuresink.Sink
}

func bootstrap() (*system, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logging.Initialize(cfg.Debug)

	database, err := db.New(cfg.StateStoreURL)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	if err := database.Migrate(); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	br, err := broker.Connect(broker.Config{URL: cfg.BrokerURL, Stream: cfg.BrokerStream, Embedded: cfg.BrokerURL == ""})
	if err != nil {
		return nil, fmt.Errorf("connect broker: %w", err)
	}

	store := state.New(database)
	agg := aggregator.New(store)
	sched := scheduler.New(store, br)
	sink := failuresink.New(store, agg)

	return &system{cfg: cfg, broker: br, store: store, aggregator: agg, scheduler: sched, sink: sink}, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	sys, err := bootstrap()
	if err != nil {
		return err
	}
	defer sys.broker.Close()

	if !sys.cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	api.New(sys.scheduler, sys.store, sys.cfg.BasePath).Register(r)

	logging.Info("dramax api listening on :%d", sys.cfg.APIPort)
	return r.Run(fmt.Sprintf(":%d", sys.cfg.APIPort))
}

func runWorker(cmd *cobra.Command, args []string) error {
	sys, err := bootstrap()
	if err != nil {
		return err
	}
	defer sys.broker.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := artifact.NewS3Store(ctx, artifact.S3Config{
		Endpoint:  sys.cfg.BlobEndpoint,
		Region:    sys.cfg.BlobRegion,
		AccessKey: sys.cfg.BlobAccessKey,
		SecretKey: sys.cfg.BlobSecretKey,
		Bucket:    sys.cfg.BlobBucket,
		UseTLS:    sys.cfg.BlobUseTLS,
	})
	if err != nil {
		return fmt.Errorf("init artifact store: %w", err)
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}

	registry := executor.NewRegistry()
	registry.Register(model.ExecutorHTTP, executor.NewHTTPExecutor())

	var creds *executor.RegistryCredentials
	if sys.cfg.RegistryUser != "" {
		creds = &executor.RegistryCredentials{
			Username:      sys.cfg.RegistryUser,
			Password:      sys.cfg.RegistryPassword,
			ServerAddress: sys.cfg.RegistryServer,
		}
	}
	containerExec, err := executor.NewContainerExecutor(creds)
	if err != nil {
		return fmt.Errorf("init container executor: %w", err)
	}
	defer containerExec.Close()
	registry.Register(model.ExecutorContainer, containerExec)

	rn := runner.New(store, registry, sys.cfg.Location())
	backoff := worker.NewBackoff(defaultBackoffBase, defaultBackoffMax)
	actor := worker.New(sys.store, sys.broker, rn, sys.aggregator, backoff, sys.cfg.DataDir)

	consumer, err := sys.broker.Subscribe(ctx, sys.cfg.DefaultQueue, "dramax-worker", sys.cfg.WorkerConcurrency, sys.cfg.MaxRetries, actor.HandleMessage, terminalHandler(sys.sink))
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", sys.cfg.DefaultQueue, err)
	}

	logging.Info("dramax worker running, concurrency=%d queue=%s", sys.cfg.WorkerConcurrency, sys.cfg.DefaultQueue)
	<-ctx.Done()
	logging.Info("dramax worker shutting down")
	consumer.Stop()
	return nil
}

// terminalHandler adapts the Failure Sink Actor's Handle method, which
// works against a decoded model.Message, to the broker.TerminalHandler
// shape the Consumer invokes with raw message bytes once redelivery is
// exhausted.
func terminalHandler(sink *failuresink.Sink) broker.TerminalHandler {
	return func(ctx context.Context, data []byte, lastErr error) error {
		var msg model.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("failure sink: parse exhausted message: %w", err)
		}
		return sink.Handle(ctx, msg, lastErr.Error())
	}
}
