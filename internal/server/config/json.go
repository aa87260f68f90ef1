package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/petkeeper/internal/flagx"
	"github.com/dmitrijs2005/petkeeper/internal/timex"
)

// JsonConfig is the on-disk shape of the optional JSON configuration file.
// Pointer fields distinguish "absent" from "zero", so a partial file only
// overrides what it names.
type JsonConfig struct {
	EndpointAddrHTTP            *string         `json:"endpoint_addr_http"`
	DatabaseDSN                 *string         `json:"database_dsn"`
	SecretKey                   *string         `json:"secret_key"`
	AccessTokenValidityDuration *timex.Duration `json:"access_token_validity_duration"`
	Environment                 *string         `json:"environment"`
	LogLevel                    *string         `json:"log_level"`
	RedisURL                    *string         `json:"redis_url"`
	BcryptCost                  *int            `json:"bcrypt_cost"`
	HashWorkers                 *int            `json:"hash_workers"`
	ReadClampPolicy             *string         `json:"read_clamp_policy"`
	AllowedOrigins              []string        `json:"allowed_origins"`
	LoginRatePerMinute          *int            `json:"login_rate_per_minute"`
	LoginRateBurst              *int            `json:"login_rate_burst"`
	TrustedProxies              []string        `json:"trusted_proxies"`
}

// parseJson loads the file given by -c/-config, if any, and copies the
// fields it sets into config. Unreadable files and invalid JSON panic.
func parseJson(config *Config, args []string) {
	path := flagx.JSONConfigPath(args)
	if path == "" {
		return
	}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.Environment, c.Environment)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.RedisURL, c.RedisURL)
	setString(&config.ReadClampPolicy, c.ReadClampPolicy)
	setInt(&config.BcryptCost, c.BcryptCost)
	setInt(&config.HashWorkers, c.HashWorkers)
	setInt(&config.LoginRatePerMinute, c.LoginRatePerMinute)
	setInt(&config.LoginRateBurst, c.LoginRateBurst)
	if c.AccessTokenValidityDuration != nil {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.AllowedOrigins != nil {
		config.AllowedOrigins = c.AllowedOrigins
	}
	if c.TrustedProxies != nil {
		config.TrustedProxies = c.TrustedProxies
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
