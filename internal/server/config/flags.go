package config

import (
	"flag"
	"os"
	"time"

	"github.com/avolkov/postdrop/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   PostgreSQL DSN
//	-i int      sweep interval, minutes
//	-k int      orphan collection interval, minutes
//	-e int      enter-deletion-list threshold, minutes
//	-n int      near-end threshold, minutes
//	-x int      delete-without-delivery threshold, minutes
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-s string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//
// The args are filtered through flagx.FilterArgs first so flags owned by
// other components do not collide. Durations are accepted as integer minutes.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-i", "-k", "-e", "-n", "-x", "-u", "-p", "-b", "-g", "-s"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")

	sweepInterval := fs.Int("i", int(config.SweepInterval.Minutes()), "sweep interval (in minutes)")
	collectInterval := fs.Int("k", int(config.CollectInterval.Minutes()), "orphan collection interval (in minutes)")
	enterAfter := fs.Int("e", int(config.EnterAfter.Minutes()), "enter deletion list after (in minutes)")
	nearEndAfter := fs.Int("n", int(config.NearEndAfter.Minutes()), "near end of deletion list after (in minutes)")
	deleteAfter := fs.Int("x", int(config.DeleteAfter.Minutes()), "delete without delivery after (in minutes)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "s", config.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.SweepInterval = time.Duration(*sweepInterval) * time.Minute
	config.CollectInterval = time.Duration(*collectInterval) * time.Minute
	config.EnterAfter = time.Duration(*enterAfter) * time.Minute
	config.NearEndAfter = time.Duration(*nearEndAfter) * time.Minute
	config.DeleteAfter = time.Duration(*deleteAfter) * time.Minute
}
