package config

import (
	"flag"
	"io"
	"strings"
	"time"

	"github.com/dmitrijs2005/petkeeper/internal/flagx"
)

var serverFlags = []string{"-a", "-d", "-s", "-t", "-e", "-l", "-r", "-b", "-w", "-p", "-o"}

// parseFlags populates Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-s string   token signing secret
//	-t int      access token validity, minutes
//	-e string   environment (development|production)
//	-l string   log level
//	-r string   Redis URL for push notifications
//	-b int      bcrypt cost
//	-w int      concurrent hashing workers
//	-p string   read clamp policy (clamp|reject)
//	-o string   comma-separated allowed WebSocket origins
func parseFlags(config *Config, args []string) {
	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	ttl := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access token validity (in minutes)")
	fs.StringVar(&config.Environment, "e", config.Environment, "environment")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.RedisURL, "r", config.RedisURL, "redis URL")
	fs.IntVar(&config.BcryptCost, "b", config.BcryptCost, "bcrypt cost")
	fs.IntVar(&config.HashWorkers, "w", config.HashWorkers, "hashing workers")
	fs.StringVar(&config.ReadClampPolicy, "p", config.ReadClampPolicy, "read clamp policy")
	origins := fs.String("o", strings.Join(config.AllowedOrigins, ","), "allowed websocket origins")

	if err := fs.Parse(flagx.FilterArgs(args, serverFlags)); err != nil {
		panic(err)
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "t":
			config.AccessTokenValidityDuration = time.Duration(*ttl) * time.Minute
		case "o":
			config.AllowedOrigins = splitList(*origins)
		}
	})
}
