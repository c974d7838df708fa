package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the prefix of every environment variable.
const EnvPrefix = "TABLEFLOW"

// Env holds deployment settings.
type Env struct {
	DBDriver     string   `envconfig:"DB_DRIVER" default:"sqlite3"`
	DBDSN        string   `envconfig:"DB_DSN" default:"tableflow-records.db"`
	StatePath    string   `envconfig:"STATE_PATH" default:"tableflow-state.db"`
	ConfigPath   string   `envconfig:"CONFIG"`
	AMQPURL      string   `envconfig:"AMQP_URL"`
	RedisAddr    string   `envconfig:"REDIS_ADDR"`
	RedisPass    string   `envconfig:"REDIS_PASSWORD"`
	RedisDB      int      `envconfig:"REDIS_DB" default:"0"`
	HTTPAddr     string   `envconfig:"HTTP_ADDR" default:":8080"`
	Restaurants  []string `envconfig:"RESTAURANTS"`
	OTLPEndpoint string   `envconfig:"OTLP_ENDPOINT"`
	Environment  string   `envconfig:"ENV" default:"dev"`
}

// LoadEnv loads the given .env files (missing files are skipped, existing
// variables win) and then processes TABLEFLOW_* variables.
func LoadEnv(dotenv ...string) (Env, error) {
	for _, path := range dotenv {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Env{}, &Error{Code: ErrCodeEnv, Message: fmt.Sprintf("loading %s: %v", path, err)}
		}
	}

	var env Env
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return Env{}, &Error{Code: ErrCodeEnv, Message: err.Error()}
	}
	for i, r := range env.Restaurants {
		env.Restaurants[i] = strings.TrimSpace(r)
	}
	return env, nil
}

// RestaurantIDs merges the environment list with the policy list,
// keeping first-seen order and dropping blanks and duplicates.
func RestaurantIDs(env Env, eng Engine) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range [][]string{env.Restaurants, eng.Restaurants} {
		for _, id := range list {
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
