package config

import (
	"encoding/json"
	"os"

	"github.com/avolkov/postdrop/internal/flagx"
	"github.com/avolkov/postdrop/internal/timex"
)

// JsonConfig is the DTO for the optional JSON config file. Interval fields
// use timex.Duration so the file can say "90m" or "24h" as well as integer
// nanoseconds. After unmarshalling, values are copied into the runtime Config.
type JsonConfig struct {
	DatabaseDSN     string         `json:"database_dsn"`
	SweepInterval   timex.Duration `json:"sweep_interval"`
	CollectInterval timex.Duration `json:"collect_interval"`
	EnterAfter      timex.Duration `json:"enter_after"`
	NearEndAfter    timex.Duration `json:"near_end_after"`
	DeleteAfter     timex.Duration `json:"delete_after"`
	S3RootUser      string         `json:"s3_root_user"`
	S3RootPassword  string         `json:"s3_root_password"`
	S3Bucket        string         `json:"s3_bucket"`
	S3Region        string         `json:"s3_region"`
	S3BaseEndpoint  string         `json:"s3_base_endpoint"`
}

// parseJson loads configuration from the JSON file named by the -c/-config
// flag, when present. A missing flag means no file is loaded; an unreadable
// or invalid file panics, since running with half-applied config is worse
// than not starting.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	config.DatabaseDSN = c.DatabaseDSN
	config.SweepInterval = c.SweepInterval.Duration
	config.CollectInterval = c.CollectInterval.Duration
	config.EnterAfter = c.EnterAfter.Duration
	config.NearEndAfter = c.NearEndAfter.Duration
	config.DeleteAfter = c.DeleteAfter.Duration
	config.S3RootUser = c.S3RootUser
	config.S3RootPassword = c.S3RootPassword
	config.S3Bucket = c.S3Bucket
	config.S3Region = c.S3Region
	config.S3BaseEndpoint = c.S3BaseEndpoint
}
