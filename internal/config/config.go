package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kdimtricp/rollcall/internal/camera"
	"github.com/kdimtricp/rollcall/internal/database"
	"github.com/kdimtricp/rollcall/internal/detect"
	"github.com/kdimtricp/rollcall/internal/faceindex"
	"github.com/kdimtricp/rollcall/internal/fingerprint"
	"github.com/spf13/viper"
)

type Config struct {
	Port              string
	PingMessage       string
	DB                database.Config
	MigrationsPath    string
	SnapshotDir       string
	SnapshotRetention time.Duration
	RelayURL          string
	Camera            camera.Config
	Detector          detect.Config
	Match             Match
	Session           Session
}

type Match struct {
	Threshold int
	Interval  time.Duration
	Hash      string
}

// Session is the class a kiosk takes roll call for when it starts detection
// without an explicit target.
type Session struct {
	DirectorateID string
	SchoolID      string
	ClassName     string
	UseWindow     bool
}

// New returns a viper instance with defaults, the optional config file search
// path and environment binding (db.type -> DB_TYPE).
func New() *viper.Viper {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	v.SetDefault("port", "8080")
	v.SetDefault("ping_message", "ping")
	v.SetDefault("db.type", database.TypeSQLite)
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "rollcall")
	v.SetDefault("db.password", "rollcall_dev")
	v.SetDefault("db.name", "rollcall")
	v.SetDefault("db.path", "./rollcall.db")
	v.SetDefault("migrations_path", "./migrations")
	v.SetDefault("snapshot_dir", "./snapshots")
	v.SetDefault("snapshot_retention", 30*24*time.Hour)
	v.SetDefault("relay_url", "")

	v.SetDefault("camera.kind", camera.KindWebcam)
	v.SetDefault("camera.device", "/dev/video0")
	v.SetDefault("camera.url", "")
	v.SetDefault("camera.path", "")
	v.SetDefault("camera.width", 640)
	v.SetDefault("camera.height", 480)

	v.SetDefault("detector.kind", detect.KindPigo)
	v.SetDefault("detector.cascade", "./cascade/facefinder")
	v.SetDefault("detector.min_size", 60)
	v.SetDefault("detector.max_size", 1000)
	v.SetDefault("detector.min_quality", 5.0)
	v.SetDefault("detector.api_key", "")

	v.SetDefault("match.threshold", faceindex.DefaultThreshold)
	v.SetDefault("match.interval", time.Second)
	v.SetDefault("match.hash", fingerprint.HashGradient)

	v.SetDefault("session.directorate_id", "")
	v.SetDefault("session.school_id", "")
	v.SetDefault("session.class_name", "")
	v.SetDefault("session.use_window", false)

	v.SetConfigName("rollcall")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/rollcall")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads .env (when present), the optional config file and the
// environment.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
		log.Println("[CONFIG] Loaded .env")
	}

	v := New()
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		log.Printf("[CONFIG] Using config file %s", v.ConfigFileUsed())
	}

	return FromViper(v)
}

func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:        v.GetString("port"),
		PingMessage: v.GetString("ping_message"),
		DB: database.Config{
			Type:       v.GetString("db.type"),
			Host:       v.GetString("db.host"),
			Port:       v.GetInt("db.port"),
			User:       v.GetString("db.user"),
			Password:   v.GetString("db.password"),
			Name:       v.GetString("db.name"),
			SQLitePath: v.GetString("db.path"),
		},
		MigrationsPath:    v.GetString("migrations_path"),
		SnapshotDir:       v.GetString("snapshot_dir"),
		SnapshotRetention: v.GetDuration("snapshot_retention"),
		RelayURL:          v.GetString("relay_url"),
		Camera: camera.Config{
			Kind:   v.GetString("camera.kind"),
			Device: v.GetString("camera.device"),
			URL:    v.GetString("camera.url"),
			Path:   v.GetString("camera.path"),
			Width:  v.GetInt("camera.width"),
			Height: v.GetInt("camera.height"),
		},
		Detector: detect.Config{
			Kind:        v.GetString("detector.kind"),
			CascadePath: v.GetString("detector.cascade"),
			MinSize:     v.GetInt("detector.min_size"),
			MaxSize:     v.GetInt("detector.max_size"),
			MinQuality:  v.GetFloat64("detector.min_quality"),
			APIKey:      v.GetString("detector.api_key"),
		},
		Match: Match{
			Threshold: v.GetInt("match.threshold"),
			Interval:  v.GetDuration("match.interval"),
			Hash:      v.GetString("match.hash"),
		},
		Session: Session{
			DirectorateID: v.GetString("session.directorate_id"),
			SchoolID:      v.GetString("session.school_id"),
			ClassName:     v.GetString("session.class_name"),
			UseWindow:     v.GetBool("session.use_window"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.DB.Type {
	case database.TypeSQLite, database.TypePostgres:
	default:
		return fmt.Errorf("unsupported db.type %q", c.DB.Type)
	}
	if c.Match.Threshold < 0 || c.Match.Threshold > 64 {
		return fmt.Errorf("match.threshold must be within 0..64, got %d", c.Match.Threshold)
	}
	if c.Match.Interval <= 0 {
		return fmt.Errorf("match.interval must be positive, got %s", c.Match.Interval)
	}
	if _, err := fingerprint.NewHasher(c.Match.Hash); err != nil {
		return err
	}
	return nil
}
