package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hendrywilliam/skua/src/gateway"
	"github.com/hendrywilliam/skua/src/messages"
	"github.com/hendrywilliam/skua/src/rest"
	"github.com/hendrywilliam/skua/src/structs"
	"github.com/hendrywilliam/skua/src/utils"
	"github.com/hendrywilliam/skua/src/webhook"
)

var signals = []os.Signal{
	os.Interrupt,
	syscall.SIGINT,
	syscall.SIGTERM,
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("no config file found, using ambient environment")
	}
	cfg, err := utils.LoadConfiguration()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	ctx, stop := signal.NotifyContext(context.Background(), signals...)
	defer stop()

	client := rest.NewREST(cfg.BotToken, rest.Options{
		BaseURL: cfg.APIBaseURL,
		Logger:  log.Logger,
	})

	messageAPI := messages.New(client)

	intents := []gateway.GatewayIntent{
		gateway.GuildsIntent,
		gateway.GuildMessagesIntent,
		gateway.MessageContentIntent,
	}
	if cfg.Intents != 0 {
		intents = []gateway.GatewayIntent{cfg.Intents}
	}
	g := gateway.NewGateway(gateway.Arguments{
		BotToken:   cfg.BotToken,
		BotIntents: intents,
		GatewayURL: cfg.GatewayURL,
		Logger:     log.Logger,
	})
	g.Handle("MESSAGE_CREATE", func(ctx context.Context, event gateway.EventName, data json.RawMessage) {
		var message structs.Message
		if err := rest.Decode(data, &message); err != nil {
			log.Error().Err(err).Msg("failed to decode message event")
			return
		}
		if message.Content != "!ping" {
			return
		}
		if _, err := messageAPI.Create(ctx, message.ChannelID, structs.CreateMessage{Content: "pong"}); err != nil {
			log.Error().Err(err).Msg("failed to send reply")
		}
	})

	if cfg.APIAddress != "" && cfg.PublicKey != "" {
		server := webhook.NewServer(webhook.Arguments{
			PublicKey: cfg.PublicKey,
			Logger:    log.Logger,
			Handler: func(ctx context.Context, i *structs.Interaction) *structs.InteractionResponse {
				if i.Type == structs.InteractionTypeApplicationCommand && i.Data.Name == "ping" {
					return &structs.InteractionResponse{
						Type: structs.InteractionResponseTypeChannelMessageWithSource,
						Data: structs.InteractionResponseDataMessage{Content: "pong"},
					}
				}
				return nil
			},
		})
		go func() {
			if err := server.StartServer(ctx, cfg.APIAddress); err != nil {
				log.Error().Err(err).Msg("interaction server exited")
			}
		}()
	}

	if err := g.Open(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to open gateway")
	}
	<-ctx.Done()
	g.Close()
}
