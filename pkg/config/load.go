package config

import (
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Load reads the first env file found among envFiles (".env" when none are
// given), then the environment, then the program file it names. Missing env
// files are not an error; the process environment alone is enough.
func Load(envFiles ...string) (*App, error) {
	logger := slog.Default()
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, name := range envFiles {
		path, err := FindFile(name)
		if err != nil {
			logger.Debug("Environment file not found", "path", name)
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		logger.Info("Loaded environment file", "path", path)
		break
	}
	return loadFromEnv()
}

func loadFromEnv() (*App, error) {
	var cfg App
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.ProgramFile != "" {
		path, err := FindFile(cfg.ProgramFile)
		if err != nil {
			return nil, fmt.Errorf("program file %s: %w", cfg.ProgramFile, err)
		}
		cfg.ProgramFile = path
	}

	program, err := LoadProgram(cfg.ProgramFile)
	if err != nil {
		return nil, err
	}
	cfg.Program = program

	slog.Default().Info("App config loaded",
		"env", cfg.Env,
		"db", maskValue(cfg.DB.Url),
		"event_bus", cfg.EventBus.Driver,
		"redis", maskValue(cfg.Redis.URL),
		"rail_url", cfg.Rail.URL,
		"rail_api_key", maskValue(cfg.Rail.APIKey),
		"bank_url", cfg.Bank.URL,
		"jwt_secret", maskValue(cfg.Auth.Jwt.Secret),
		"program_file", cfg.ProgramFile,
		"pools", len(program.Pools),
		"match_rate", program.MatchRate,
		"sunset_threshold", program.SunsetThreshold,
	)
	return &cfg, nil
}

func maskValue(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 6 {
		return "****"
	}
	return key[:2] + "****" + key[len(key)-4:]
}
