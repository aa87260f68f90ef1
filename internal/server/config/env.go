package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/petkeeper/internal/flagx"
	"github.com/joho/godotenv"
)

const envPrefix = "PETKEEPER_"

// parseEnv loads the dotenv file named by -env (default ".env") into the
// process environment without overriding variables that are already set, and
// then copies every PETKEEPER_* variable that is present into config.
// A missing dotenv file is not an error; an unreadable one panics.
func parseEnv(config *Config, args []string) {
	if err := godotenv.Load(flagx.EnvFilePath(args)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(err)
	}

	lookupString("HTTP_ADDR", &config.EndpointAddrHTTP)
	lookupString("DATABASE_DSN", &config.DatabaseDSN)
	lookupString("SECRET_KEY", &config.SecretKey)
	lookupString("ENVIRONMENT", &config.Environment)
	lookupString("LOG_LEVEL", &config.LogLevel)
	lookupString("REDIS_URL", &config.RedisURL)
	lookupString("READ_CLAMP", &config.ReadClampPolicy)
	lookupDuration("ACCESS_TOKEN_TTL", &config.AccessTokenValidityDuration)
	lookupInt("BCRYPT_COST", &config.BcryptCost)
	lookupInt("HASH_WORKERS", &config.HashWorkers)
	lookupInt("LOGIN_RATE_PER_MINUTE", &config.LoginRatePerMinute)
	lookupInt("LOGIN_RATE_BURST", &config.LoginRateBurst)

	if v, ok := os.LookupEnv(envPrefix + "ALLOWED_ORIGINS"); ok {
		config.AllowedOrigins = splitList(v)
	}
	if v, ok := os.LookupEnv(envPrefix + "TRUSTED_PROXIES"); ok {
		config.TrustedProxies = splitList(v)
	}
}

func lookupString(key string, dst *string) {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		*dst = v
	}
}

func lookupInt(key string, dst *int) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		panic(err)
	}
	*dst = n
}

func lookupDuration(key string, dst *time.Duration) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		panic(err)
	}
	*dst = d
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
