package config

import (
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Config carries every tunable the session core depends on. All values come
// from the environment with sensible defaults, so a bare `go run` works.
type Config struct {
	// ListenAddr is the HTTP/websocket listen address.
	ListenAddr string

	// MaxLobbySize bounds the number of seated players per lobby.
	MaxLobbySize int

	// EmptyLobbyLifetime is how long an empty lobby survives before its
	// delayed removal fires. The removal re-checks emptiness at fire time.
	EmptyLobbyLifetime time.Duration

	// StartTimer is the countdown between the owner's start request and
	// the race going in progress.
	StartTimer time.Duration

	// MaxPlayTime caps a race. ReducedPlayTime replaces the remaining play
	// time once the first player finishes.
	MaxPlayTime     time.Duration
	ReducedPlayTime time.Duration

	// FinishTime is how long results stay up before the lobby resets.
	FinishTime time.Duration
}

// Load reads the configuration from the environment.
func Load() Config {
	return Config{
		ListenAddr:         getEnv("LISTEN_ADDR", ":3030"),
		MaxLobbySize:       getEnvInt("MAX_LOBBY_SIZE", 5),
		EmptyLobbyLifetime: getEnvDuration("EMPTY_LOBBY_LIFETIME", 30*time.Second),
		StartTimer:         getEnvDuration("LOBBY_START_TIMER", 10*time.Second),
		MaxPlayTime:        getEnvDuration("MAX_LOBBY_PLAY_TIME", 2*time.Minute),
		ReducedPlayTime:    getEnvDuration("REDUCED_LOBBY_PLAY_TIME", 10*time.Second),
		FinishTime:         getEnvDuration("LOBBY_FINISH_TIME", 10*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		zap.S().Warnw("invalid integer in environment, using default",
			"key", key, "value", v, "default", fallback)
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		zap.S().Warnw("invalid duration in environment, using default",
			"key", key, "value", v, "default", fallback)
		return fallback
	}
	return d
}
