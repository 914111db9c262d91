package conf

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "BARSYNC"

// ApplyEnv nakłada zmienne środowiskowe BARSYNC_* (oraz plik .env, jeśli jest)
// na config wczytany z pliku. Puste zmienne niczego nie nadpisują.
func ApplyEnv(cfg *Config, envFiles ...string) {
	if len(envFiles) == 0 {
		_ = godotenv.Load()
	} else {
		_ = godotenv.Load(envFiles...)
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setString(v, "BACKEND", &cfg.Backend)
	setString(v, "LOG_LEVEL", &cfg.LogLevel)
	setString(v, "API_KEY", &cfg.APIKey)
	setString(v, "DATABASE_DRIVER", &cfg.Database.Driver)
	setString(v, "DATABASE_DSN", &cfg.Database.DSN)
	setString(v, "NATS_URL", &cfg.Events.NATSURL)
	setString(v, "SERVER_ADDR", &cfg.Server.Addr)
	setString(v, "S3_ACCESS_KEY", &cfg.Upload.S3.AccessKey)
	setString(v, "S3_SECRET_KEY", &cfg.Upload.S3.SecretKey)

	if url := v.GetString("REDIS_URL"); url != "" {
		cfg.Cache.RedisURL = url
		cfg.Cache.Enabled = true
	}
	if origins := v.GetString("SERVER_ALLOWED_ORIGINS"); origins != "" {
		cfg.Server.AllowedOrigins = splitList(origins)
	}
}

func setString(v *viper.Viper, key string, dst *string) {
	if val := strings.TrimSpace(v.GetString(key)); val != "" {
		*dst = val
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
