package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/yeremiapane/kitchen-display/config"
	"github.com/yeremiapane/kitchen-display/database"
	"github.com/yeremiapane/kitchen-display/feed"
	"github.com/yeremiapane/kitchen-display/kds"
	"github.com/yeremiapane/kitchen-display/middlewares"
	"github.com/yeremiapane/kitchen-display/router"
	"github.com/yeremiapane/kitchen-display/services"
	"github.com/yeremiapane/kitchen-display/utils"
)

const shutdownTimeout = 10 * time.Second

func newDisplayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "display",
		Short: "Run the kitchen display engine and its UI API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runDisplay(cmd.Context(), cfg)
		},
	}
}

func newFeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "feed",
		Short: "Run the reference order feed server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.RequireSecret(); err != nil {
				return err
			}
			return runFeed(cmd.Context(), cfg)
		},
	}
}

func pushSource(cfg config.Config, log logrus.FieldLogger) kds.PushSource {
	switch cfg.Feed.PushDriver {
	case config.PushWebsocket:
		return feed.NewWSClient(cfg.Feed.WSURL, cfg.Feed.Token, log)
	case config.PushAMQP:
		return feed.NewAMQPSubscriber(cfg.Feed.AMQPURL, cfg.Feed.AMQPExchange, log)
	}
	return nil
}

func runDisplay(ctx context.Context, cfg config.Config) error {
	log := utils.InfoLogger

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := kds.NewMetrics(reg)
	hub := kds.NewHub(log)
	client := feed.NewHTTPClient(cfg.Feed.URL, cfg.Feed.Token, nil)

	opts := []kds.Option{
		kds.WithLogger(log),
		kds.WithMetrics(metrics),
		kds.WithListener(kds.HubListener{Hub: hub}),
	}
	if src := pushSource(cfg, log); src != nil {
		opts = append(opts, kds.WithPushSource(src))
	}
	engine := kds.NewEngine(cfg.Engine, client, client, opts...)

	r := router.SetupDisplayRouter(router.DisplayDeps{
		Engine:      engine,
		Hub:         hub,
		Gatherer:    reg,
		RateLimiter: middlewares.NewRateLimiter(20, 40),
	})

	log.WithFields(logrus.Fields{
		"port":        cfg.HTTP.Port,
		"feed":        cfg.Feed.URL,
		"push_driver": cfg.Feed.PushDriver,
	}).Info("starting kitchen display")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return engine.Run(ctx) })
	g.Go(func() error { return serve(ctx, cfg.HTTP.Port, r) })
	return g.Wait()
}

func runFeed(ctx context.Context, cfg config.Config) error {
	log := utils.InfoLogger

	db, err := config.InitDB(cfg.Database)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}
	authz, err := middlewares.NewAuthorizer(db)
	if err != nil {
		return err
	}

	hub := kds.NewHub(log)
	var publisher services.EventPublisher
	if cfg.Feed.AMQPURL != "" {
		p, err := services.NewAMQPPublisher(cfg.Feed.AMQPURL, cfg.Feed.AMQPExchange)
		if err != nil {
			return err
		}
		defer p.Close()
		publisher = p
	}

	monitor := services.NewChangeMonitor(db, hub, publisher, log)
	monitor.Interval = cfg.Feed.OutboxInterval
	monitor.Start()
	defer monitor.Stop()

	r := router.SetupFeedRouter(router.FeedDeps{
		Orders:      services.NewOrderService(db, cfg.Engine.Retention),
		Authorizer:  authz,
		Hub:         hub,
		RateLimiter: middlewares.NewRateLimiter(50, 100),
	})

	log.WithFields(logrus.Fields{"port": cfg.HTTP.Port, "db": cfg.Database.Driver}).Info("starting order feed")
	return serve(ctx, cfg.HTTP.Port, r)
}

// serve runs h until ctx is done, then shuts down gracefully.
func serve(ctx context.Context, port string, h http.Handler) error {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		utils.InfoLogger.Printf("Listening on port %s", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
