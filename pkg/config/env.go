package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Program values that can be overridden without editing the program file.
const (
	EnvMatchRate          = "TREASURY_MATCH_RATE"
	EnvSunsetThreshold    = "TREASURY_SUNSET_THRESHOLD"
	EnvConfirmationPhrase = "TREASURY_CONFIRMATION_PHRASE"
)

// GetEnv retrieves an environment variable with a default value
func GetEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvAsInt64 retrieves an environment variable as int64. Unlike GetEnv
// a set but unparsable value is an error rather than the default.
func GetEnvAsInt64(key string, defaultValue int64) (int64, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s=%q: %w", key, value, err)
	}
	return n, nil
}

func (p *Program) applyEnv() error {
	p.MatchRate = GetEnv(EnvMatchRate, p.MatchRate)
	p.ConfirmationPhrase = GetEnv(EnvConfirmationPhrase, p.ConfirmationPhrase)
	threshold, err := GetEnvAsInt64(EnvSunsetThreshold, p.SunsetThreshold)
	if err != nil {
		return err
	}
	p.SunsetThreshold = threshold
	return nil
}
