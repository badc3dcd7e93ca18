package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mqttpong/internal/client"
	"mqttpong/internal/config"
	"mqttpong/internal/logging"
	"mqttpong/internal/netwrk"
	"mqttpong/internal/protocol"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	broker := flag.String("broker", "", "broker URL, overrides the config")
	game := flag.String("game", "", "game id to join, overrides the config")
	player := flag.Int("player", 1, "seat to claim, 1 or 2")
	token := flag.String("token", "", "seat token, random when empty")
	flag.Parse()

	logger := logging.New("pong-client", "")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if *broker != "" {
		cfg.BrokerURL = *broker
	}
	if *game != "" {
		cfg.GameID = *game
	}
	logger = logging.New("pong-client", cfg.LogLevel)

	if *player != 1 && *player != 2 {
		logger.Fatal().Int("player", *player).Msg("player must be 1 or 2")
	}
	if cfg.GameID == "" {
		logger.Fatal().Msg("a game id is required, pass -game or set game_id")
	}
	tok := *token
	if tok == "" {
		tok = uuid.NewString()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// If the broker loses us without a clean disconnect it publishes
	// this leave notice for us, so the seat is released either way.
	will, err := client.LeaveNotice(*player, tok)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to encode leave notice")
	}

	suffix := tok
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}

	var cl *client.Client
	conn := netwrk.NewMQTT(netwrk.Options{
		BrokerURL: cfg.BrokerURL,
		ClientID:  fmt.Sprintf("%s-p%d-%s", cfg.ClientID, *player, suffix),
		Username:  cfg.Username,
		Password:  cfg.Password,
		KeepAlive: cfg.KeepAlive(),
		QoS:       byte(cfg.QoS),
		Will:      &netwrk.Will{Topic: protocol.Topic(cfg.GameID, protocol.ChanJoin), Payload: will},
		OnConnectionState: func(ok bool) {
			if cl != nil {
				cl.SetConnected(ok)
			}
		},
		Logger: logger,
	})
	cl = client.New(conn, cfg.GameID, *player, tok, logger)

	if err := conn.Connect(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to broker")
	}
	defer conn.Close()

	go func() {
		if err := cl.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("message stream ended")
			stop()
		}
	}()

	joinCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = cl.Join(joinCtx)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("join failed")
	}
	logger.Info().Str("game", cfg.GameID).Int("player", *player).Msg("joined")

	follow(ctx, cl, logger)

	if err := cl.Leave(); err != nil {
		logger.Warn().Err(err).Msg("leave notice failed")
	}
	logger.Info().Msg("left game")
}

// follow drives the seat without a UI: the paddle shadows the ball,
// finished games get one restart vote, and score changes are logged.
// A frontend would replace this loop with input handling and rendering
// against cl.Snapshot.
func follow(ctx context.Context, cl *client.Client, logger zerolog.Logger) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	var lastP1, lastP2 int
	voted := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := cl.Snapshot()
			if st.P1Score != lastP1 || st.P2Score != lastP2 {
				logger.Info().Int("p1", st.P1Score).Int("p2", st.P2Score).Msg("score")
				lastP1, lastP2 = st.P1Score, st.P2Score
			}
			switch st.Status {
			case protocol.StatusPlaying:
				voted = false
				if err := cl.SetPaddle(st.Ball.Y); err != nil {
					logger.Debug().Err(err).Msg("paddle send failed")
				}
			case protocol.StatusGameOver:
				if !voted {
					if err := cl.Ready(); err == nil {
						voted = true
						logger.Info().Int("winner", st.Winner).Msg("game over, voted to restart")
					}
				}
			case protocol.StatusClosed:
				logger.Info().Msg("session closed")
				return
			}
		}
	}
}
