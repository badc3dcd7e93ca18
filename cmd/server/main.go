package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"mqttpong/internal/config"
	"mqttpong/internal/logging"
	"mqttpong/internal/netwrk"
	"mqttpong/internal/protocol"
	"mqttpong/internal/session"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	broker := flag.String("broker", "", "broker URL, overrides the config")
	flag.Parse()

	logger := logging.New("pong-server", "")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if *broker != "" {
		cfg.BrokerURL = *broker
	}
	logger = logging.New("pong-server", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn := netwrk.NewMQTT(netwrk.Options{
		BrokerURL: cfg.BrokerURL,
		ClientID:  cfg.ClientID + "-server-" + uuid.NewString()[:8],
		Username:  cfg.Username,
		Password:  cfg.Password,
		KeepAlive: cfg.KeepAlive(),
		QoS:       byte(cfg.QoS),
		Logger:    logger,
	})
	if err := conn.Connect(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to broker")
	}
	defer conn.Close()

	if err := conn.Subscribe(protocol.ServerFilters()...); err != nil {
		logger.Fatal().Err(err).Msg("failed to subscribe")
	}

	reg := session.NewRegistry(conn, session.Config{
		WinningScore: cfg.WinningScore,
		TickInterval: cfg.TickInterval(),
		IdleTimeout:  cfg.IdleTimeout(),
		MsgRate:      cfg.MsgRate,
		MsgBurst:     cfg.MsgBurst,
	}, logger)
	go reg.Run(ctx)

	logger.Info().Str("broker", cfg.BrokerURL).Int("tick_rate", cfg.TickRate).Msg("engine running")

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down")
			reg.Close()
			return
		case msg := <-conn.Messages():
			reg.Handle(ctx, msg)
		}
	}
}
