package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Settings struct {
	ListenAddr   string `envconfig:"LISTEN_ADDR" default:"127.0.0.1:8010"`
	DataPath     string `envconfig:"DATA_PATH" default:"./data"`
	DatabasePath string `envconfig:"DATABASE_PATH" default:""`
	LogPath      string `envconfig:"LOG_PATH" default:""`
	APIToken     string `envconfig:"API_TOKEN" default:""`

	// AllowedOrigins are extra host patterns (e.g. "app.example.com",
	// "*.example.com") whose pages may open the events websocket. Same-origin
	// requests and clients that send no Origin are always accepted.
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:""`

	// SSH transport
	DialTimeout    time.Duration `envconfig:"DIAL_TIMEOUT" default:"10s"`
	KnownHostsPath string        `envconfig:"KNOWN_HOSTS" default:""`
	AllowedHosts   string        `envconfig:"ALLOWED_HOSTS" default:""`

	// Tail sessions
	PollInterval  time.Duration `envconfig:"POLL_INTERVAL" default:"50ms"`
	TailLines     int           `envconfig:"TAIL_LINES" default:"1000"`
	ReadTailLines int           `envconfig:"READ_TAIL_LINES" default:"1000"`
	MaxLineBytes  int           `envconfig:"MAX_LINE_BYTES" default:"1048576"`
	EventBuffer   int           `envconfig:"EVENT_BUFFER" default:"256"`

	// Liveness probes on streaming connections; a negative interval disables them.
	KeepaliveInterval time.Duration `envconfig:"KEEPALIVE_INTERVAL" default:"30s"`
	KeepaliveTimeout  time.Duration `envconfig:"KEEPALIVE_TIMEOUT" default:"15s"`

	DiscoveryDirs []string `envconfig:"DISCOVERY_DIRS" default:"/var/log,/var/log/nginx,/var/log/apache2,/opt/logs,/app/logs,/home/logs"`

	// Tail history retention
	HistoryRetentionDays int    `envconfig:"HISTORY_RETENTION_DAYS" default:"30"`
	HistoryPurgeSchedule string `envconfig:"HISTORY_PURGE_SCHEDULE" default:"@daily"`

	ConnectionsFile string `envconfig:"CONNECTIONS_FILE" default:""`
}

var Cfg Settings

func Load() {
	if err := envconfig.Process("LOGVIEWER", &Cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
}

// ResolvedDatabasePath returns DatabasePath, falling back to a file under DataPath.
func (s Settings) ResolvedDatabasePath() string {
	if s.DatabasePath != "" {
		return s.DatabasePath
	}
	return s.DataPath + "/log-viewer.db"
}

// ResolvedLogPath returns LogPath, falling back to a file under DataPath.
func (s Settings) ResolvedLogPath() string {
	if s.LogPath != "" {
		return s.LogPath
	}
	return s.DataPath + "/log-viewer.log"
}
