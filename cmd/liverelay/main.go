package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/goevery/liverelay/internal/auth"
	"github.com/goevery/liverelay/internal/channel"
	"github.com/goevery/liverelay/internal/handler"
	"github.com/goevery/liverelay/internal/metrics"
	"github.com/goevery/liverelay/internal/relay"
	"github.com/goevery/liverelay/internal/room"
	"github.com/goevery/liverelay/internal/server"
	"github.com/goevery/liverelay/internal/transport"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type App struct {
	logger          *zap.Logger
	settings        Settings
	promRegistry    *prometheus.Registry
	broker          channel.Broker
	redisBroker     *channel.RedisBroker
	websocketServer *server.WebSocketServer
	restServer      *server.RESTServer
}

func NewApp(logger *zap.Logger, settings Settings) *App {
	originChecker := server.NewOriginChecker(settings.AllowedOrigins)
	websocketUpgrader := &websocket.Upgrader{
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		CheckOrigin:       originChecker.Check,
		EnableCompression: true,
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(promRegistry)

	authenticator := auth.NewAuthenticator(settings.JWTSecret, settings.APIKeys)

	hub := transport.NewHub(logger)
	roomRegistry := room.NewRegistry(logger)

	signalRelay := relay.NewRelay(logger, roomRegistry, hub, collector)
	reconciler := relay.NewReconciler(logger, roomRegistry, hub, collector)
	hub.OnDisconnect(reconciler.ParticipantDisconnected)

	var broker channel.Broker
	var redisBroker *channel.RedisBroker

	localBroker := channel.NewLocalBroker(hub)
	broker = localBroker

	if settings.RedisAddress != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     settings.RedisAddress,
			Password: settings.RedisPassword,
		})

		redisBroker = channel.NewRedisBroker(logger, redisClient, localBroker)
		broker = redisBroker
	}

	channelValidator := handler.NewChannelValidator()
	channelAccess := handler.NewChannelAccess(settings.ChannelAuthRequired)

	publishHandler := handler.NewPublishHandler(channelValidator, channelAccess, broker, collector)

	router := server.NewRouter(logger, server.Handlers{
		Heartbeat:         handler.NewHeartbeatHandler(),
		Auth:              handler.NewAuthHandler(authenticator),
		Subscribe:         handler.NewSubscribeHandler(channelValidator, channelAccess, hub),
		Unsubscribe:       handler.NewUnsubscribeHandler(channelValidator, hub),
		Publish:           publishHandler,
		StartBroadcasting: handler.NewStartBroadcastingHandler(signalRelay),
		StopBroadcasting:  handler.NewStopBroadcastingHandler(reconciler),
		CheckBroadcaster:  handler.NewCheckBroadcasterHandler(signalRelay, hub),
		ViewerJoin:        handler.NewViewerJoinHandler(signalRelay),
		Signal:            handler.NewSignalHandler(signalRelay),
	})

	websocketServer := server.NewWebSocketServer(
		logger,
		websocketUpgrader,
		hub,
		router,
		collector,
		server.WebSocketOptions{
			SendQueueSize:     settings.SendQueueSize,
			ReadLimit:         settings.ReadLimit,
			WriteTimeout:      10 * time.Second,
			PingInterval:      settings.PingInterval,
			MessagesPerSecond: settings.MessagesPerSecond,
			MessageBurst:      settings.MessageBurst,
		},
	)
	restServer := server.NewRESTServer(
		logger,
		authenticator,
		publishHandler,
		signalRelay,
	)

	return &App{
		logger,
		settings,
		promRegistry,
		broker,
		redisBroker,
		websocketServer,
		restServer,
	}
}

func (a *App) setup(ctx context.Context) error {
	notifyCtx, notifyCtxCancel := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer notifyCtxCancel()

	if a.redisBroker != nil {
		go func() {
			err := a.redisBroker.Run(notifyCtx)
			if err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("redis fan-out stopped", zap.Error(err))
			}
		}()
	}

	a.startHttpServer(notifyCtx)

	return a.broker.Close()
}

func (a *App) startHttpServer(ctx context.Context) {
	address := fmt.Sprintf("0.0.0.0:%d", a.settings.Port)

	router := mux.NewRouter().
		PathPrefix(a.settings.BasePath).
		Subrouter()

	a.websocketServer.Register(router)
	a.restServer.Register(router)
	router.Handle("/metrics", promhttp.HandlerFor(a.promRegistry, promhttp.HandlerOpts{})).
		Methods(http.MethodGet)

	httpServer := &http.Server{
		Addr:    address,
		Handler: router,
	}

	a.logger.Info("starting http server",
		zap.String("address", address),
		zap.String("basePath", a.settings.BasePath),
		zap.Bool("redis", a.redisBroker != nil))

	go func() {
		err := httpServer.ListenAndServe()

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("failed to start http server",
				zap.Error(err))
		}
	}()

	<-ctx.Done()

	a.logger.Info("stopping http server")

	shutdownCtx, shutdownCtxCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCtxCancel()

	err := httpServer.Shutdown(shutdownCtx)
	if err != nil {
		a.logger.Error("http server shutdown failed",
			zap.Error(err))
	}

	a.logger.Info("http server stopped")
}

func main() {
	ctx := context.Background()

	var settings Settings
	_, err := env.UnmarshalFromEnviron(&settings)
	if err != nil {
		panic(fmt.Errorf("failed to parse settings from environment: %w", err))
	}

	logger, err := buildZapLogger(settings.LogEncoding, settings.LogLevel)
	if err != nil {
		panic(fmt.Errorf("failed to build logger: %w", err))
	}
	defer logger.Sync()

	app := NewApp(logger, settings)

	err = app.setup(ctx)
	if err != nil {
		logger.Fatal("failed to setup", zap.Error(err))
	}
}
