package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	ServiceName string            `yaml:"service_name"`
	Environment string            `yaml:"environment"`
	HTTP        HTTPConfig        `yaml:"http"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Bus         BusConfig         `yaml:"bus"`
	JobStore    JobStoreConfig    `yaml:"job_store"`
	Media       MediaConfig       `yaml:"media"`
	Engine      EngineConfig      `yaml:"engine"`
	Diarization DiarizationConfig `yaml:"diarization"`
	Worker      WorkerConfig      `yaml:"worker"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type JobStoreConfig struct {
	Path string `yaml:"path"`
}

type MediaConfig struct {
	FFmpegPath   string `yaml:"ffmpeg_path"`
	FFprobePath  string `yaml:"ffprobe_path"`
	ChunkSeconds int    `yaml:"chunk_seconds"`
	SampleRate   int    `yaml:"sample_rate"`
}

type EngineConfig struct {
	Mode      string `yaml:"mode"` // mock, exec
	Name      string `yaml:"name"`
	Command   string `yaml:"command"`
	ModelPath string `yaml:"model_path"`
	Language  string `yaml:"language"`
}

type DiarizationConfig struct {
	Enabled bool   `yaml:"enabled"`
	Command string `yaml:"command"`
}

type WorkerConfig struct {
	Count        int `yaml:"count"`
	JobTimeoutMS int `yaml:"job_timeout_ms"`
	QueueSize    int `yaml:"queue_size"`
}

func Default() Config {
	return Config{
		ServiceName: "scribed",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		JobStore: JobStoreConfig{
			Path: "./data/scribed.db",
		},
		Media: MediaConfig{
			FFmpegPath:   "ffmpeg",
			FFprobePath:  "ffprobe",
			ChunkSeconds: 300,
			SampleRate:   16000,
		},
		Engine: EngineConfig{
			Mode: "mock",
			Name: "whisper.cpp",
		},
		Diarization: DiarizationConfig{
			Enabled: false,
		},
		Worker: WorkerConfig{
			Count:        2,
			JobTimeoutMS: 30 * 60 * 1000,
			QueueSize:    128,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.ServiceName, "SCRIBED_SERVICE_NAME")
	overrideString(&cfg.Environment, "SCRIBED_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "SCRIBED_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "SCRIBED_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "SCRIBED_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "SCRIBED_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "SCRIBED_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "SCRIBED_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Enabled, "SCRIBED_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "SCRIBED_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "SCRIBED_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "SCRIBED_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "SCRIBED_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "SCRIBED_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "SCRIBED_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "SCRIBED_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "SCRIBED_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.JobStore.Path, "SCRIBED_JOB_STORE_PATH")
	overrideString(&cfg.Media.FFmpegPath, "SCRIBED_MEDIA_FFMPEG_PATH")
	overrideString(&cfg.Media.FFprobePath, "SCRIBED_MEDIA_FFPROBE_PATH")
	overrideInt(&cfg.Media.ChunkSeconds, "SCRIBED_MEDIA_CHUNK_SECONDS")
	overrideInt(&cfg.Media.SampleRate, "SCRIBED_MEDIA_SAMPLE_RATE")
	overrideString(&cfg.Engine.Mode, "SCRIBED_ENGINE_MODE")
	overrideString(&cfg.Engine.Name, "SCRIBED_ENGINE_NAME")
	overrideString(&cfg.Engine.Command, "SCRIBED_ENGINE_COMMAND")
	overrideString(&cfg.Engine.ModelPath, "SCRIBED_ENGINE_MODEL_PATH")
	overrideString(&cfg.Engine.Language, "SCRIBED_ENGINE_LANGUAGE")
	overrideBool(&cfg.Diarization.Enabled, "SCRIBED_DIARIZATION_ENABLED")
	overrideString(&cfg.Diarization.Command, "SCRIBED_DIARIZATION_COMMAND")
	overrideInt(&cfg.Worker.Count, "SCRIBED_WORKER_COUNT")
	overrideInt(&cfg.Worker.JobTimeoutMS, "SCRIBED_WORKER_JOB_TIMEOUT_MS")
	overrideInt(&cfg.Worker.QueueSize, "SCRIBED_WORKER_QUEUE_SIZE")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.ServiceName == "" {
		return errors.New("service_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.JobStore.Path == "" {
		return errors.New("job_store.path must not be empty")
	}
	if cfg.Media.FFmpegPath == "" {
		return errors.New("media.ffmpeg_path must not be empty")
	}
	if cfg.Media.ChunkSeconds <= 0 {
		return errors.New("media.chunk_seconds must be positive")
	}
	if cfg.Media.SampleRate <= 0 {
		return errors.New("media.sample_rate must be positive")
	}
	switch cfg.Engine.Mode {
	case "mock", "exec":
	default:
		return errors.New("engine.mode must be one of mock|exec")
	}
	if cfg.Engine.Mode == "exec" && cfg.Engine.Command == "" {
		return errors.New("engine.command must be set when mode=exec")
	}
	if cfg.Diarization.Enabled && cfg.Diarization.Command == "" {
		return errors.New("diarization.command must be set when diarization is enabled")
	}
	if cfg.Worker.Count <= 0 {
		return errors.New("worker.count must be >= 1")
	}
	if cfg.Worker.JobTimeoutMS <= 0 {
		return errors.New("worker.job_timeout_ms must be positive")
	}
	if cfg.Worker.QueueSize <= 0 {
		return errors.New("worker.queue_size must be >= 1")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	return nil
}
