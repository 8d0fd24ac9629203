package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Settings holds every runtime knob. Timeouts and intervals are expressed in
// seconds in the environment and converted via the helper methods below.
type Settings struct {
	ListenAddr   string `envconfig:"LISTEN_ADDR" default:":8000"`
	DataPath     string `envconfig:"DATA_PATH" default:"./data"`
	DatabasePath string `envconfig:"DATABASE_PATH" default:"./data/sshbridge.db"`
	LogPath      string `envconfig:"LOG_PATH" default:"./data/sshbridge.log"`

	// AllowedUsers is the identity allow-list checked by the HTTP middleware.
	// Empty means no user may call the API.
	AllowedUsers []int64 `envconfig:"ALLOWED_USERS"`

	// SSH connection timeouts, in seconds.
	ConnectTimeoutSec int `envconfig:"SSH_CONNECT_TIMEOUT" default:"30"`
	AuthTimeoutSec    int `envconfig:"SSH_AUTH_TIMEOUT" default:"30"`
	BannerTimeoutSec  int `envconfig:"SSH_BANNER_TIMEOUT" default:"30"`

	// Command execution and output limits.
	CommandTimeoutSec int `envconfig:"COMMAND_TIMEOUT" default:"30"`
	MaxOutputLength   int `envconfig:"MAX_OUTPUT_LENGTH" default:"4000"`

	// File transfer limit, in bytes.
	MaxFileSize int64 `envconfig:"MAX_FILE_SIZE" default:"52428800"`

	// Idle session eviction.
	SessionTimeoutSec int `envconfig:"SESSION_TIMEOUT" default:"3600"`
	SweepIntervalSec  int `envconfig:"SWEEP_INTERVAL" default:"300"`

	// Optional YAML file with extra monitor command templates.
	MonitorTemplates string `envconfig:"MONITOR_TEMPLATES" default:""`
}

var Cfg Settings

// Load reads .env (if present) and then processes SSHBRIDGE_* environment
// variables into Cfg.
func Load() {
	_ = godotenv.Load()
	if err := envconfig.Process("SSHBRIDGE", &Cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
}

func (s Settings) ConnectTimeout() time.Duration {
	return time.Duration(s.ConnectTimeoutSec) * time.Second
}

func (s Settings) AuthTimeout() time.Duration {
	return time.Duration(s.AuthTimeoutSec) * time.Second
}

func (s Settings) BannerTimeout() time.Duration {
	return time.Duration(s.BannerTimeoutSec) * time.Second
}

func (s Settings) CommandTimeout() time.Duration {
	return time.Duration(s.CommandTimeoutSec) * time.Second
}

func (s Settings) SessionTimeout() time.Duration {
	return time.Duration(s.SessionTimeoutSec) * time.Second
}

func (s Settings) SweepInterval() time.Duration {
	return time.Duration(s.SweepIntervalSec) * time.Second
}

// IsAllowedUser reports whether userID is on the allow-list.
func (s Settings) IsAllowedUser(userID int64) bool {
	for _, id := range s.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}
