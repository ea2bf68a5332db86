package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

const envPrefix = "RTCALL_"

// Load builds a Config from command-line args. Flag defaults come from
// RTCALL_* environment variables, which may be provided by a .env file in the
// working directory. Validation is left to the caller so interactive prompts
// can fill in what is missing.
func Load(args []string) (*Config, error) {
	// A missing .env is the common case.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}

	cfg := &Config{}
	fs := pflag.NewFlagSet("rtcall", pflag.ContinueOnError)

	role := fs.StringP("role", "r", getEnv("ROLE", ""), "Role: relay, caller or callee")
	fs.BoolVar(&cfg.Debug, "debug", getEnvBool("DEBUG", false), "Enable debug logging")

	fs.StringVarP(&cfg.Listen, "listen", "l", getEnv("LISTEN", ":8082"), "Relay listen address")
	fs.StringVar(&cfg.PIN, "pin", getEnv("PIN", ""), "Relay PIN required on auth (empty disables)")

	fs.StringVarP(&cfg.URL, "url", "u", getEnv("URL", ""), "Relay WebSocket URL")
	fs.StringVar(&cfg.ID, "id", getEnv("ID", ""), "Own user id")
	fs.StringVarP(&cfg.Peer, "peer", "p", getEnv("PEER", ""), "Remote user id")
	fs.StringVar(&cfg.Platform, "platform", getEnv("PLATFORM", "cli"), "Platform label sent on auth")
	fs.StringVar(&cfg.Password, "password", getEnv("PASSWORD", ""), "Relay PIN sent on auth")
	fs.StringVarP(&cfg.Source, "source", "s", getEnv("SOURCE", ""), "VP8 IVF file to publish as local video")
	fs.BoolVar(&cfg.Loop, "loop", getEnvBool("LOOP", true), "Loop the source file")
	fs.StringVarP(&cfg.Record, "record", "o", getEnv("RECORD", ""), "WebM file to record remote video into")
	fs.StringSliceVarP(&cfg.STUN, "stun", "S", getEnvList("STUN"), "STUN server URLs")
	fs.DurationVar(&cfg.StartDelay, "delay", getEnvDuration("DELAY", 0), "Delay before starting negotiation")
	fs.BoolVar(&cfg.Chat, "chat", getEnvBool("CHAT", false), "Send stdin lines as chat messages")
	fs.DurationVar(&cfg.DialTimeout, "dial-timeout", getEnvDuration("DIAL_TIMEOUT", 10*time.Second), "Relay dial timeout")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg.Role = Role(strings.ToLower(*role))

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(envPrefix + key); exists {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return d
	}
	return fallback
}

func getEnvList(key string) []string {
	value := getEnv(key, "")
	if value == "" {
		return nil
	}
	return strings.Fields(strings.ReplaceAll(value, ",", " "))
}
