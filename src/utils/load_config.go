package utils

import (
	"fmt"
	"os"
	"strconv"
)

type AppConfig struct {
	BotToken   string
	PublicKey  string
	Intents    int
	GatewayURL string
	APIBaseURL string
	APIAddress string
	AppEnv     string
}

// LoadConfiguration reads the app configuration from the environment.
// Only the bot token is mandatory; everything else has a sane default.
func LoadConfiguration() (AppConfig, error) {
	cfg := AppConfig{}
	requiredEnv := map[string]*string{
		"DC_BOT_TOKEN": &cfg.BotToken,
	}
	for k, v := range requiredEnv {
		val, ok := os.LookupEnv(k)
		if !ok || len(val) == 0 {
			return AppConfig{}, fmt.Errorf("provide: %s", k)
		}
		*v = val
	}
	cfg.PublicKey = os.Getenv("DC_PUBLIC_KEY")
	cfg.GatewayURL = os.Getenv("DC_GATEWAY_ADDRESS")
	cfg.APIBaseURL = os.Getenv("DC_HTTP_BASE_URL")
	cfg.APIAddress = os.Getenv("API_ADDRESS")
	cfg.AppEnv = os.Getenv("APP_ENV")
	if raw := os.Getenv("DC_BOT_INTENTS"); raw != "" {
		intents, err := strconv.Atoi(raw)
		if err != nil {
			return AppConfig{}, fmt.Errorf("dc_bot_intents must be an integer: %w", err)
		}
		cfg.Intents = intents
	}
	return cfg, nil
}
