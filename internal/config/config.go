package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

const (
	// DefaultReconnectDelay is the fixed delay between reconnect attempts.
	// Constant on purpose: the client favors eventual reconnection over
	// connection-storm protection.
	DefaultReconnectDelay = 3 * time.Second

	// DefaultTypingDebounce is the quiet period after the last keystroke
	// before a "stopped typing" signal is emitted.
	DefaultTypingDebounce = 2 * time.Second
)

// Config holds all configuration for the client.
type Config struct {
	APIBaseURL     string
	ChannelURL     string
	UploadURL      string
	Token          string
	ReconnectDelay time.Duration
	TypingDebounce time.Duration
}

// New loads configuration from environment variables.
func New() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg := &Config{
		APIBaseURL:     os.Getenv("CHATKIT_API_URL"),
		ChannelURL:     os.Getenv("CHATKIT_WS_URL"),
		Token:          os.Getenv("CHATKIT_TOKEN"),
		ReconnectDelay: DefaultReconnectDelay,
		TypingDebounce: DefaultTypingDebounce,
	}

	if cfg.APIBaseURL == "" || cfg.ChannelURL == "" || cfg.Token == "" {
		log.Fatal("Required environment variables CHATKIT_API_URL, CHATKIT_WS_URL, or CHATKIT_TOKEN are not set.")
	}

	cfg.UploadURL = os.Getenv("CHATKIT_UPLOAD_URL")
	if cfg.UploadURL == "" {
		cfg.UploadURL = cfg.APIBaseURL + "/uploads"
	}

	if v := os.Getenv("CHATKIT_RECONNECT_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ReconnectDelay = d
		} else {
			log.Printf("Invalid CHATKIT_RECONNECT_DELAY %q, using default", v)
		}
	}

	if v := os.Getenv("CHATKIT_TYPING_DEBOUNCE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.TypingDebounce = d
		} else {
			log.Printf("Invalid CHATKIT_TYPING_DEBOUNCE %q, using default", v)
		}
	}

	return cfg
}
