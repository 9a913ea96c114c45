package cfg

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Settings struct {
	DatabaseURL     string
	RegistryURL     string
	DataPath        string
	ListenPort      int
	CacheSize       int
	RegistryTimeout time.Duration
	RequestTimeout  time.Duration
	MinSamples      int
	MinSlotGroups   int
	MinSlotSamples  int
	TrainOnStart    bool
}

type ConfigFile struct {
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`

	Registry struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"registry"`

	Serving struct {
		ListenPort     int    `yaml:"listenPort"`
		CacheSize      int    `yaml:"cacheSize"`
		RequestTimeout string `yaml:"requestTimeout"`
	} `yaml:"serving"`

	Training struct {
		MinSamples     int  `yaml:"minSamples"`
		MinSlotGroups  int  `yaml:"minSlotGroups"`
		MinSlotSamples int  `yaml:"minSlotSamples"`
		TrainOnStart   bool `yaml:"trainOnStart"`
	} `yaml:"training"`

	System struct {
		DataPath string `yaml:"dataPath"`
	} `yaml:"system"`
}

func Load() (Settings, error) {
	// Try to load from YAML file first
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Parse durations
	registryTimeout, err := time.ParseDuration(config.Registry.Timeout)
	if err != nil {
		registryTimeout = 5 * time.Second
	}

	requestTimeout, err := time.ParseDuration(config.Serving.RequestTimeout)
	if err != nil {
		requestTimeout = 10 * time.Second
	}

	settings := Settings{
		DatabaseURL:     getEnvOrDefault("DATABASE_URL", config.Database.URL),
		RegistryURL:     getEnvOrDefault("MODEL_REGISTRY_URL", config.Registry.URL),
		DataPath:        getEnvOrDefault("DATA_PATH", config.System.DataPath),
		ListenPort:      getIntFromEnvOrConfig("LISTEN_PORT", config.Serving.ListenPort, 8080),
		CacheSize:       getIntFromEnvOrConfig("CACHE_SIZE", config.Serving.CacheSize, 1024),
		RegistryTimeout: registryTimeout,
		RequestTimeout:  requestTimeout,
		MinSamples:      getIntFromEnvOrConfig("TRAIN_MIN_SAMPLES", config.Training.MinSamples, 100),
		MinSlotGroups:   getIntFromEnvOrConfig("TRAIN_MIN_SLOT_GROUPS", config.Training.MinSlotGroups, 50),
		MinSlotSamples:  getIntFromEnvOrConfig("TRAIN_MIN_SLOT_SAMPLES", config.Training.MinSlotSamples, 5),
		TrainOnStart:    getBoolFromEnvOrConfig("TRAIN_ON_START", config.Training.TrainOnStart),
	}

	if settings.DataPath == "" {
		settings.DataPath = "data"
	}

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		DatabaseURL:     os.Getenv("DATABASE_URL"),       // optional, disables training data pulls
		RegistryURL:     os.Getenv("MODEL_REGISTRY_URL"), // optional, disables registration
		DataPath:        getEnvOrDefault("DATA_PATH", "data"),
		ListenPort:      getIntOrDefault("LISTEN_PORT", 8080),
		CacheSize:       getIntOrDefault("CACHE_SIZE", 1024),
		RegistryTimeout: getDurationOrDefault("REGISTRY_TIMEOUT", 5*time.Second),
		RequestTimeout:  getDurationOrDefault("REQUEST_TIMEOUT", 10*time.Second),
		MinSamples:      getIntOrDefault("TRAIN_MIN_SAMPLES", 100),
		MinSlotGroups:   getIntOrDefault("TRAIN_MIN_SLOT_GROUPS", 50),
		MinSlotSamples:  getIntOrDefault("TRAIN_MIN_SLOT_SAMPLES", 5),
		TrainOnStart:    getBoolOrDefault("TRAIN_ON_START", false),
	}

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getBoolFromEnvOrConfig(key string, configValue bool) bool {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseBool(env); err == nil {
			return val
		}
	}
	return configValue
}

// validateSettings performs comprehensive validation of configuration values
func validateSettings(settings *Settings) error {
	if settings.DataPath == "" {
		return fmt.Errorf("data path cannot be empty")
	}

	// Validate ports and sizes
	if settings.ListenPort < 1024 || settings.ListenPort > 65535 {
		return fmt.Errorf("listen port must be between 1024 and 65535, got %d", settings.ListenPort)
	}
	if settings.CacheSize <= 0 || settings.CacheSize > 1_000_000 {
		return fmt.Errorf("cache size must be between 1 and 1000000, got %d", settings.CacheSize)
	}

	// Validate time durations
	if settings.RegistryTimeout < time.Second || settings.RegistryTimeout > time.Minute {
		return fmt.Errorf("registry timeout must be between 1s and 1m, got %v", settings.RegistryTimeout)
	}
	if settings.RequestTimeout < time.Second || settings.RequestTimeout > 5*time.Minute {
		return fmt.Errorf("request timeout must be between 1s and 5m, got %v", settings.RequestTimeout)
	}

	// Validate training thresholds
	if settings.MinSamples <= 0 {
		return fmt.Errorf("minimum training samples must be positive, got %d", settings.MinSamples)
	}
	if settings.MinSlotGroups <= 0 {
		return fmt.Errorf("minimum slot groups must be positive, got %d", settings.MinSlotGroups)
	}
	if settings.MinSlotSamples <= 0 {
		return fmt.Errorf("minimum samples per slot must be positive, got %d", settings.MinSlotSamples)
	}

	return nil
}
