package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type BaseEnv struct {
	Env      string `envconfig:"ENV" default:"local"`
	HTTPHost string `envconfig:"HTTP_HOST" default:"127.0.0.1"`
	HTTPPort string `envconfig:"HTTP_PORT" default:"8765"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	StateDir string `envconfig:"STATE_DIR" default:".stagehand"`
}

type SchedulerEnv struct {
	MonitorInterval time.Duration `envconfig:"MONITOR_INTERVAL" default:"2s"`
	SweepInterval   time.Duration `envconfig:"SWEEP_INTERVAL" default:"5s"`
	ScaleInterval   time.Duration `envconfig:"SCALE_INTERVAL" default:"10s"`
}

type StorageEnv struct {
	Type    string `envconfig:"STORAGE_TYPE" default:"local"`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:".stagehand/assets"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"stagehand/"`
	S3Region string `envconfig:"S3_REGION" default:"ap-northeast-1"`
}

type TheaterEnv struct {
	BaseURL     string        `envconfig:"THEATER_URL" default:"http://localhost:8000"`
	MinInterval time.Duration `envconfig:"THEATER_MIN_INTERVAL" default:"500ms"`
}

type VAPIDEnv struct {
	VAPIDPublicKey  string `envconfig:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `envconfig:"VAPID_PRIVATE_KEY"`
	VAPIDContact    string `envconfig:"VAPID_CONTACT" default:"mailto:crew@stagecraft.example"`
}

type Env struct {
	BaseEnv
	SchedulerEnv
	StorageEnv
	TheaterEnv
	VAPIDEnv
}

const namespace = "STAGEHAND"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	return &env, nil
}

func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelInfo
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func (e *BaseEnv) ListenAddr() string {
	return e.HTTPHost + ":" + e.HTTPPort
}
