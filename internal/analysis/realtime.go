package analysis

import (
	"context"
	"sync"

	"github.com/examwatch/examwatch/internal/api"
	"github.com/examwatch/examwatch/internal/conf"
	"github.com/examwatch/examwatch/internal/httpserver"
	"github.com/examwatch/examwatch/internal/intake/kafka"
	"github.com/examwatch/examwatch/internal/logger"
)

// RealtimeAnalysis builds the components, starts the HTTP API and the Kafka
// intake as configured, and runs until ctx is cancelled or the HTTP server
// fails.
func RealtimeAnalysis(ctx context.Context, settings *conf.Settings) error {
	log := logger.Global().Module("analysis")

	c, err := Build(ctx, settings, log)
	if err != nil {
		return err
	}
	defer c.Close()

	var server httpserver.Server
	if settings.WebServer.Enabled {
		srv, err := api.New(settings,
			api.WithLogger(logger.Global().Module("api")),
			api.WithPipeline(c.Pipeline, c.Recorder),
			api.WithDataStore(c.Store),
			api.WithQuery(c.Query),
			api.WithMetrics(c.Metrics))
		if err != nil {
			return err
		}
		srv.Start()
		server = srv
	}

	var wg sync.WaitGroup
	intakeCtx, stopIntake := context.WithCancel(ctx)
	defer stopIntake()

	if settings.Kafka.Enabled {
		consumer, err := newKafkaIntake(c)
		if err != nil {
			shutdown(server, log)
			return err
		}
		wg.Go(func() {
			if err := consumer.Run(intakeCtx); err != nil {
				log.Error("kafka intake stopped", logger.Error(err))
			}
		})
		defer func() {
			if err := consumer.Close(); err != nil {
				log.Warn("failed to close kafka consumer", logger.Error(err))
			}
		}()
	}

	log.Info("ExamWatch running",
		logger.Bool("http", server != nil),
		logger.Bool("kafka", settings.Kafka.Enabled))

	var serverErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown requested")
	case serverErr = <-waitChan(server):
	}

	stopIntake()
	wg.Wait()
	shutdown(server, log)
	return serverErr
}

// newKafkaIntake builds the consumer group feeding frames into c.
func newKafkaIntake(c *Components) (*kafka.Consumer, error) {
	klog := logger.Global().Module("kafka")
	handler := kafka.NewHandler(c.Pipeline, c.Recorder, c.Metrics.Integration.For("kafka"), klog)
	return kafka.NewConsumer(&c.Settings.Kafka, c.Settings.Main.Name, handler, klog)
}

// waitChan returns the server's exit channel, or nil when there is no server
// so the select blocks on ctx alone.
func waitChan(server httpserver.Server) <-chan error {
	if server == nil {
		return nil
	}
	return server.Wait()
}

func shutdown(server httpserver.Server, log logger.Logger) {
	if server == nil {
		return
	}
	if err := server.Shutdown(); err != nil {
		log.Warn("HTTP server shutdown failed", logger.Error(err))
	}
}
