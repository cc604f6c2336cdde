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
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type HotkeyConfig struct {
	Mode       string `yaml:"mode"` // mock, exec
	Command    string `yaml:"command"`
	Key        string `yaml:"key"`
	DebounceMS int    `yaml:"debounce_ms"`
}

type AudioConfig struct {
	Mode            string `yaml:"mode"` // mock, exec
	Command         string `yaml:"command"`
	Device          string `yaml:"device"`
	SampleRate      int    `yaml:"sample_rate"`
	Channels        int    `yaml:"channels"`
	FrameDurationMS int    `yaml:"frame_duration_ms"`
	MinDurationMS   int    `yaml:"min_duration_ms"`
	MaxDurationS    int    `yaml:"max_duration_s"`
	DumpDir         string `yaml:"dump_dir"`
}

type TranscribeConfig struct {
	Mode      string `yaml:"mode"` // mock, exec, native
	Command   string `yaml:"command"`
	ModelPath string `yaml:"model_path"`
	Model     string `yaml:"model"`
	Language  string `yaml:"language"`
}

type EnhanceConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Mode        string  `yaml:"mode"` // mock, ollama, openai
	Endpoint    string  `yaml:"endpoint"`
	Model       string  `yaml:"model"`
	TimeoutMS   int     `yaml:"timeout_ms"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	APIKeyEnv   string  `yaml:"api_key_env"`
}

type OutputConfig struct {
	Mode          string `yaml:"mode"` // mock, exec
	Command       string `yaml:"command"`
	TrailingSpace bool   `yaml:"trailing_space"`
}

type PerfLogConfig struct {
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
	MaxRecords    int    `yaml:"max_records"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	Hotkey      HotkeyConfig     `yaml:"hotkey"`
	Audio       AudioConfig      `yaml:"audio"`
	Transcribe  TranscribeConfig `yaml:"transcribe"`
	Enhance     EnhanceConfig    `yaml:"enhance"`
	Output      OutputConfig     `yaml:"output"`
	PerfLog     PerfLogConfig    `yaml:"perf_log"`
	Corrections string           `yaml:"corrections"`
}

func Default() Config {
	return Config{
		RuntimeName: "quill",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "127.0.0.1",
			Port: 8321,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4322,
			Servers:        []string{"nats://localhost:4322"},
			ConnectTimeout: 2000,
		},
		Hotkey: HotkeyConfig{
			Mode:       "mock",
			Key:        "rightshift",
			DebounceMS: 50,
		},
		Audio: AudioConfig{
			Mode:            "mock",
			Command:         "arecord -q -t raw -f S16_LE -r 16000 -c 1",
			SampleRate:      16000,
			Channels:        1,
			FrameDurationMS: 30,
			MinDurationMS:   120,
			MaxDurationS:    120,
		},
		Transcribe: TranscribeConfig{
			Mode:     "mock",
			Model:    "turbo",
			Language: "en",
		},
		Enhance: EnhanceConfig{
			Enabled:     false,
			Mode:        "ollama",
			Endpoint:    "http://localhost:11434",
			Model:       "gemma3:12b",
			TimeoutMS:   10000,
			MaxTokens:   150,
			Temperature: 0.3,
			APIKeyEnv:   "OPENAI_API_KEY",
		},
		Output: OutputConfig{
			Mode:          "mock",
			Command:       "wtype -",
			TrailingSpace: true,
		},
		PerfLog: PerfLogConfig{
			Path:          "./data/quill-perf.db",
			RetentionDays: 30,
			MaxRecords:    10000,
		},
		Corrections: "./corrections.json",
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
	overrideString(&cfg.RuntimeName, "QUILL_RUNTIME_NAME")
	overrideString(&cfg.Environment, "QUILL_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "QUILL_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "QUILL_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "QUILL_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "QUILL_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "QUILL_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Embedded, "QUILL_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "QUILL_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "QUILL_BUS_SERVERS")
	overrideInt(&cfg.Bus.ConnectTimeout, "QUILL_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Hotkey.Mode, "QUILL_HOTKEY_MODE")
	overrideString(&cfg.Hotkey.Command, "QUILL_HOTKEY_COMMAND")
	overrideString(&cfg.Hotkey.Key, "QUILL_HOTKEY_KEY")
	overrideInt(&cfg.Hotkey.DebounceMS, "QUILL_HOTKEY_DEBOUNCE_MS")
	overrideString(&cfg.Audio.Mode, "QUILL_AUDIO_MODE")
	overrideString(&cfg.Audio.Command, "QUILL_AUDIO_COMMAND")
	overrideString(&cfg.Audio.Device, "QUILL_AUDIO_DEVICE")
	overrideInt(&cfg.Audio.SampleRate, "QUILL_AUDIO_SAMPLE_RATE")
	overrideInt(&cfg.Audio.Channels, "QUILL_AUDIO_CHANNELS")
	overrideInt(&cfg.Audio.FrameDurationMS, "QUILL_AUDIO_FRAME_DURATION_MS")
	overrideInt(&cfg.Audio.MinDurationMS, "QUILL_AUDIO_MIN_DURATION_MS")
	overrideInt(&cfg.Audio.MaxDurationS, "QUILL_AUDIO_MAX_DURATION_S")
	overrideString(&cfg.Audio.DumpDir, "QUILL_AUDIO_DUMP_DIR")
	overrideString(&cfg.Transcribe.Mode, "QUILL_TRANSCRIBE_MODE")
	overrideString(&cfg.Transcribe.Command, "QUILL_TRANSCRIBE_COMMAND")
	overrideString(&cfg.Transcribe.ModelPath, "QUILL_TRANSCRIBE_MODEL_PATH")
	overrideString(&cfg.Transcribe.Model, "QUILL_TRANSCRIBE_MODEL")
	overrideString(&cfg.Transcribe.Language, "QUILL_TRANSCRIBE_LANGUAGE")
	overrideBool(&cfg.Enhance.Enabled, "QUILL_ENHANCE_ENABLED")
	overrideString(&cfg.Enhance.Mode, "QUILL_ENHANCE_MODE")
	overrideString(&cfg.Enhance.Endpoint, "QUILL_ENHANCE_ENDPOINT")
	overrideString(&cfg.Enhance.Model, "QUILL_ENHANCE_MODEL")
	overrideInt(&cfg.Enhance.TimeoutMS, "QUILL_ENHANCE_TIMEOUT_MS")
	overrideInt(&cfg.Enhance.MaxTokens, "QUILL_ENHANCE_MAX_TOKENS")
	overrideFloat(&cfg.Enhance.Temperature, "QUILL_ENHANCE_TEMPERATURE")
	overrideString(&cfg.Enhance.APIKeyEnv, "QUILL_ENHANCE_API_KEY_ENV")
	overrideString(&cfg.Output.Mode, "QUILL_OUTPUT_MODE")
	overrideString(&cfg.Output.Command, "QUILL_OUTPUT_COMMAND")
	overrideBool(&cfg.Output.TrailingSpace, "QUILL_OUTPUT_TRAILING_SPACE")
	overrideString(&cfg.PerfLog.Path, "QUILL_PERF_LOG_PATH")
	overrideInt(&cfg.PerfLog.RetentionDays, "QUILL_PERF_LOG_RETENTION_DAYS")
	overrideInt(&cfg.PerfLog.MaxRecords, "QUILL_PERF_LOG_MAX_RECORDS")
	overrideBool(&cfg.PerfLog.VacuumOnStart, "QUILL_PERF_LOG_VACUUM_ON_START")
	overrideString(&cfg.Corrections, "QUILL_CORRECTIONS")
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

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
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
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	switch cfg.Hotkey.Mode {
	case "mock", "exec":
	default:
		return errors.New("hotkey.mode must be one of mock|exec")
	}
	if cfg.Hotkey.Mode == "exec" && cfg.Hotkey.Command == "" {
		return errors.New("hotkey.command must be set when mode=exec")
	}
	if cfg.Hotkey.DebounceMS < 0 {
		return errors.New("hotkey.debounce_ms must be >= 0")
	}
	switch cfg.Audio.Mode {
	case "mock", "exec":
	default:
		return errors.New("audio.mode must be one of mock|exec")
	}
	if cfg.Audio.Mode == "exec" && cfg.Audio.Command == "" {
		return errors.New("audio.command must be set when mode=exec")
	}
	if cfg.Audio.SampleRate <= 0 {
		return errors.New("audio.sample_rate must be positive")
	}
	if cfg.Audio.Channels <= 0 {
		return errors.New("audio.channels must be positive")
	}
	if cfg.Audio.FrameDurationMS <= 0 {
		return errors.New("audio.frame_duration_ms must be positive")
	}
	if cfg.Audio.MaxDurationS <= 0 {
		return errors.New("audio.max_duration_s must be positive")
	}
	if cfg.Audio.MinDurationMS < 0 {
		return errors.New("audio.min_duration_ms must be >= 0")
	}
	switch cfg.Transcribe.Mode {
	case "mock", "exec", "native":
	default:
		return errors.New("transcribe.mode must be one of mock|exec|native")
	}
	if cfg.Transcribe.Mode == "exec" && cfg.Transcribe.Command == "" {
		return errors.New("transcribe.command must be set when mode=exec")
	}
	if cfg.Transcribe.Mode == "native" && cfg.Transcribe.ModelPath == "" {
		return errors.New("transcribe.model_path must be set when mode=native")
	}
	if cfg.Enhance.Enabled {
		switch cfg.Enhance.Mode {
		case "mock", "ollama", "openai":
		default:
			return errors.New("enhance.mode must be one of mock|ollama|openai")
		}
		if cfg.Enhance.Mode != "mock" && cfg.Enhance.Endpoint == "" {
			return errors.New("enhance.endpoint must be set when enhancement is enabled")
		}
		if cfg.Enhance.TimeoutMS <= 0 {
			return errors.New("enhance.timeout_ms must be positive")
		}
		if cfg.Enhance.MaxTokens < 0 {
			return errors.New("enhance.max_tokens must be >= 0")
		}
	}
	switch cfg.Output.Mode {
	case "mock", "exec":
	default:
		return errors.New("output.mode must be one of mock|exec")
	}
	if cfg.Output.Mode == "exec" && cfg.Output.Command == "" {
		return errors.New("output.command must be set when mode=exec")
	}
	if cfg.PerfLog.Path == "" {
		return errors.New("perf_log.path must not be empty")
	}
	if cfg.PerfLog.RetentionDays < 0 {
		return errors.New("perf_log.retention_days must be >= 0")
	}
	return nil
}
