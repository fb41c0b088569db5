package common

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	logger "github.com/kthomas/go-logger"
	redisutil "github.com/kthomas/go-redisutil"
)

var (
	// Log is the configured logger
	Log *logger.Logger

	// ConsumeNATSStreamingSubscriptions allows package consumers to establish their subscriptions
	ConsumeNATSStreamingSubscriptions bool

	// DefaultSessionTTL is the validity window applied to newly issued match sessions
	DefaultSessionTTL time.Duration

	// DefaultRevealTimeout is the window all parties have to reveal once the commit phase closes
	DefaultRevealTimeout time.Duration

	// DefaultTurnTimeSeconds is applied to rooms created without an explicit per-turn budget
	DefaultTurnTimeSeconds int
)

func init() {
	godotenv.Load()

	requireLogger()
	requireMatchConfiguration()
}

func requireLogger() {
	lvl := os.Getenv("LOG_LEVEL")
	if lvl == "" {
		lvl = "INFO"
	}

	var endpoint *string
	if os.Getenv("SYSLOG_ENDPOINT") != "" {
		endpt := os.Getenv("SYSLOG_ENDPOINT")
		endpoint = &endpt
	}

	Log = logger.NewLogger("matchsync", lvl, endpoint)
}

func requireMatchConfiguration() {
	ConsumeNATSStreamingSubscriptions = os.Getenv("CONSUME_NATS_STREAMING_SUBSCRIPTIONS") == "true"

	DefaultSessionTTL = time.Hour * 1
	if os.Getenv("SESSION_TTL_MINUTES") != "" {
		if mins, err := strconv.Atoi(os.Getenv("SESSION_TTL_MINUTES")); err == nil {
			DefaultSessionTTL = time.Minute * time.Duration(mins)
		}
	}

	DefaultRevealTimeout = time.Minute * 2
	if os.Getenv("SEED_REVEAL_TIMEOUT_SECONDS") != "" {
		if secs, err := strconv.Atoi(os.Getenv("SEED_REVEAL_TIMEOUT_SECONDS")); err == nil {
			DefaultRevealTimeout = time.Second * time.Duration(secs)
		}
	}

	DefaultTurnTimeSeconds = 60
	if os.Getenv("DEFAULT_TURN_TIME_SECONDS") != "" {
		if secs, err := strconv.Atoi(os.Getenv("DEFAULT_TURN_TIME_SECONDS")); err == nil {
			DefaultTurnTimeSeconds = secs
		}
	}
}

// RequireRedis panics unless a redis connection can be established; the seed
// round finalization and void sweeps take distributed locks through it
func RequireRedis() {
	redisutil.RequireRedis()
}
