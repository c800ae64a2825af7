package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/tierkeeper/internal/flagx"
)

// parseFlags populates Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-n string   database driver ("pgx" or "sqlite")
//	-d string   database DSN
//	-l int      login count needed for SILVER
//	-m int      recommendation count needed for GOLD
//	-f string   log format ("json", "text", "console")
//	-v string   log level
//	-o string   log file path
//	-s string   cron schedule
//	-t uint     retry attempts for transient failures
//	-w int      retry base delay, milliseconds
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//
// os.Args is filtered with flagx.FilterArgs first so -c/-config and any
// unrelated flags do not make the parse fail.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-n", "-d", "-l", "-m", "-f", "-v", "-o", "-s", "-t", "-w", "-u", "-p", "-b", "-g", "-e",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.DatabaseDriver, "n", config.DatabaseDriver, "database driver")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.IntVar(&config.MinLoginForSilver, "l", config.MinLoginForSilver, "login count needed for SILVER")
	fs.IntVar(&config.MinRecommendForGold, "m", config.MinRecommendForGold, "recommendation count needed for GOLD")
	fs.StringVar(&config.LogFormat, "f", config.LogFormat, "log format")
	fs.StringVar(&config.LogLevel, "v", config.LogLevel, "log level")
	fs.StringVar(&config.LogFile, "o", config.LogFile, "log file path")
	fs.StringVar(&config.Schedule, "s", config.Schedule, "cron schedule for promotion passes")
	fs.Uint64Var(&config.RetryAttempts, "t", config.RetryAttempts, "retry attempts")

	retryBaseDelay := fs.Int("w", int(config.RetryBaseDelay.Milliseconds()), "retry base delay (in milliseconds)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.RetryBaseDelay = time.Duration(*retryBaseDelay) * time.Millisecond
}
