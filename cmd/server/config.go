package main

import (
	"fmt"
	"time"
)

type Config struct {
	Host                 string        `env:"HOST,default=localhost"`
	Port                 int           `env:"PORT,default=8080"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=256"`
	TypingExpiry         time.Duration `env:"TYPING_EXPIRY,default=4s"`
	ReaperInterval       time.Duration `env:"REAPER_INTERVAL,default=30s"`
	StaleThreshold       time.Duration `env:"STALE_THRESHOLD,default=90s"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	BadgerFilepath       string        `env:"BADGER_FILEPATH,required=true"`
	LogLevel             string        `env:"LOG_LEVEL,default=INFO"`
	JWTSecret            string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration    time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
	LimitMessages        *int          `env:"LIMIT_MESSAGES"`
	CharReplacement      string        `env:"CHARACTER_REPLACEMENT,default=*"`
	CorsOrigins          []string      `env:"CORS_ORIGINS"`
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
