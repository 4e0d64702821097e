package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Env is the process configuration of the standalone arena host.
type Env struct {
	GameConfigPath string
	LogLevel       string
	HTTPAddr       string
	TickInterval   time.Duration
	// AdminSecret signs and verifies bearer tokens on the HTTP API.
	AdminSecret string
	// PrintOperatorToken writes a short-lived admin token to stdout at startup. Off unless set.
	PrintOperatorToken bool
	DatabaseURL        string

	DiscordToken     string
	DiscordChannelID string

	ArchiveBucket    string
	ArchiveEndpoint  string
	ArchiveRegion    string
	ArchiveAccessKey string
	ArchiveSecretKey string

	VoiceSecret string
	VoiceIssuer string
	VoiceDomain string
}

// LoadEnv reads the environment, loading .env first when present.
func LoadEnv() (*Env, error) {
	_ = godotenv.Load()

	e := &Env{
		GameConfigPath:   firstNonEmpty(os.Getenv("GAME_CONFIG_PATH"), "data/game_config.json"),
		LogLevel:         firstNonEmpty(os.Getenv("LOG_LEVEL"), "info"),
		HTTPAddr:         firstNonEmpty(os.Getenv("HTTP_ADDR"), ":8080"),
		AdminSecret:      os.Getenv("ADMIN_JWT_SECRET"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		DiscordToken:     os.Getenv("DISCORD_BOT_TOKEN"),
		DiscordChannelID: os.Getenv("DISCORD_CHANNEL_ID"),
		ArchiveBucket:    os.Getenv("ARCHIVE_BUCKET"),
		ArchiveEndpoint:  os.Getenv("ARCHIVE_ENDPOINT"),
		ArchiveRegion:    firstNonEmpty(os.Getenv("ARCHIVE_REGION"), "auto"),
		ArchiveAccessKey: os.Getenv("ARCHIVE_ACCESS_KEY_ID"),
		ArchiveSecretKey: os.Getenv("ARCHIVE_SECRET_ACCESS_KEY"),
		VoiceSecret:      os.Getenv("VIVOX_SECRET"),
		VoiceIssuer:      os.Getenv("VIVOX_ISSUER"),
		VoiceDomain:      os.Getenv("VIVOX_DOMAIN"),
	}

	tick, err := strconv.Atoi(firstNonEmpty(os.Getenv("TICK_INTERVAL_MS"), "100"))
	if err != nil || tick <= 0 {
		return nil, fmt.Errorf("invalid TICK_INTERVAL_MS %q", os.Getenv("TICK_INTERVAL_MS"))
	}
	e.TickInterval = time.Duration(tick) * time.Millisecond

	if v := os.Getenv("PRINT_OPERATOR_TOKEN"); v != "" {
		if e.PrintOperatorToken, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("invalid PRINT_OPERATOR_TOKEN %q", v)
		}
	}

	if e.AdminSecret == "" {
		return nil, errors.New("missing ADMIN_JWT_SECRET")
	}
	if (e.DiscordToken == "") != (e.DiscordChannelID == "") {
		return nil, errors.New("DISCORD_BOT_TOKEN and DISCORD_CHANNEL_ID must be set together")
	}
	return e, nil
}

// DiscordEnabled reports whether match results should be announced.
func (e *Env) DiscordEnabled() bool { return e.DiscordToken != "" }

// ArchiveEnabled reports whether match summaries should be uploaded.
func (e *Env) ArchiveEnabled() bool { return e.ArchiveBucket != "" }

// VoiceEnabled reports whether voice tokens can be issued.
func (e *Env) VoiceEnabled() bool {
	return e.VoiceSecret != "" && e.VoiceIssuer != "" && e.VoiceDomain != ""
}

func firstNonEmpty(v, d string) string {
	if v == "" {
		return d
	}
	return v
}

func setOrEmpty(v string) string {
	if v == "" {
		return "[empty]"
	}
	return "[set]"
}

// Redacted summarises the configuration without secrets.
func (e *Env) Redacted() string {
	return fmt.Sprintf(
		"config=%s log=%s http=%s tick=%s db=%s discordChannel=%s archiveBucket=%q archiveEndpoint=%q adminSecret=%s discordToken=%s voice=%t",
		e.GameConfigPath, e.LogLevel, e.HTTPAddr, e.TickInterval, setOrEmpty(e.DatabaseURL), e.DiscordChannelID,
		e.ArchiveBucket, e.ArchiveEndpoint, setOrEmpty(e.AdminSecret), setOrEmpty(e.DiscordToken), e.VoiceEnabled(),
	)
}
