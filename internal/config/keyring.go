package config

import (
	"github.com/zalando/go-keyring"
)

const keyringService = "desk-assistant"

// Keyring entry names.
const (
	KeyringBotToken = "bot_token"
	KeyringAIKey    = "ai_api_key"
)

// StoreSecret saves a secret to the OS keyring.
func StoreSecret(key, value string) error {
	return keyring.Set(keyringService, key, value)
}

// DeleteSecret removes a secret from the OS keyring.
func DeleteSecret(key string) error {
	return keyring.Delete(keyringService, key)
}

func lookupSecret(key string) string {
	val, err := keyring.Get(keyringService, key)
	if err != nil {
		return ""
	}
	return val
}

// ResolveSecrets fills the bot token and AI key from the OS keyring when
// present. The keyring wins over values coming from env or the config file.
func ResolveSecrets(cfg *Config) {
	if v := lookupSecret(KeyringBotToken); v != "" {
		cfg.Bot.Token = v
	}
	if v := lookupSecret(KeyringAIKey); v != "" {
		cfg.AI.APIKey = v
	}
}
