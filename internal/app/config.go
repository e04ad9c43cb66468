package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/vk/mvnflow/internal/blob"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendFS     = "fs"
	BackendMinio  = "minio"
	BackendMemory = "memory"
)

// Env variables overriding the storage file.
const (
	EnvMinioEndpoint  = "MVNFLOW_MINIO_ENDPOINT"
	EnvMinioAccessKey = "MVNFLOW_MINIO_ACCESS_KEY"
	EnvMinioSecretKey = "MVNFLOW_MINIO_SECRET_KEY"
	EnvCacheDir       = "MVNFLOW_CACHE_DIR"
	EnvArtifactDir    = "MVNFLOW_ARTIFACT_DIR"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// WorkflowPath is a .hcl file or a directory. Empty selects the
	// built-in Maven workflow.
	WorkflowPath string
	// Source is the project directory jobs check out.
	Source string
	Inputs map[string]string
	// RunDir is the parent of per-run directories. Empty uses a temporary
	// directory.
	RunDir     string
	KeepRunDir bool

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
	WorkerCount     int
	EventsURL       string

	Storage StorageConfig
}

// StorageConfig is the content of the TOML configuration file.
type StorageConfig struct {
	Cache     BackendConfig `toml:"cache"`
	Artifacts BackendConfig `toml:"artifacts"`
	Minio     MinioSection  `toml:"minio"`
	Maven     MavenSection  `toml:"maven"`
}

// BackendConfig selects where a store keeps its objects.
type BackendConfig struct {
	Backend string `toml:"backend"`
	// Dir is used by the fs backend.
	Dir string `toml:"dir"`
	// Bucket and Prefix are used by the minio backend.
	Bucket string `toml:"bucket"`
	Prefix string `toml:"prefix"`
}

// MinioSection holds the S3-compatible endpoint shared by both stores.
type MinioSection struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Region    string `toml:"region"`
	UseSSL    bool   `toml:"use_ssl"`
}

// MavenSection configures the mvn invocation.
type MavenSection struct {
	Executable string `toml:"executable"`
}

// MinioConfig returns the blob configuration for one store.
func (s StorageConfig) MinioConfig(b BackendConfig) blob.MinioConfig {
	return blob.MinioConfig{
		Endpoint:  s.Minio.Endpoint,
		AccessKey: s.Minio.AccessKey,
		SecretKey: s.Minio.SecretKey,
		Region:    s.Minio.Region,
		UseSSL:    s.Minio.UseSSL,
		Bucket:    b.Bucket,
		Prefix:    b.Prefix,
	}
}

// NewConfig applies defaults and validates cfg.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.Source == "" {
		cfg.Source = "."
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Inputs == nil {
		cfg.Inputs = map[string]string{}
	}

	var errs []error
	if info, err := os.Stat(cfg.Source); err != nil {
		errs = append(errs, fmt.Errorf("source %s: %w", cfg.Source, err))
	} else if !info.IsDir() {
		errs = append(errs, fmt.Errorf("source %s is not a directory", cfg.Source))
	}
	if cfg.WorkerCount < 0 {
		errs = append(errs, errors.New("worker count must not be negative"))
	}
	if cfg.HealthcheckPort < 0 || cfg.HealthcheckPort > 65535 {
		errs = append(errs, fmt.Errorf("healthcheck port %d is out of range", cfg.HealthcheckPort))
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("invalid log format %q", cfg.LogFormat))
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("invalid log level %q", cfg.LogLevel))
	}
	for name, b := range map[string]BackendConfig{"cache": cfg.Storage.Cache, "artifacts": cfg.Storage.Artifacts} {
		switch b.Backend {
		case "", BackendFS:
		case BackendMemory:
			if name == "cache" {
				errs = append(errs, errors.New("cache: the memory backend would lose entries at exit"))
			}
		case BackendMinio:
			if err := cfg.Storage.MinioConfig(b).Validate(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
		default:
			errs = append(errs, fmt.Errorf("%s: unknown backend %q", name, b.Backend))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(cfg.Source)
	if err != nil {
		return nil, err
	}
	cfg.Source = abs
	return &cfg, nil
}

// LoadStorageFile reads the TOML configuration file. Unknown keys are
// rejected so typos do not silently fall back to defaults.
func LoadStorageFile(path string) (StorageConfig, error) {
	var sc StorageConfig
	md, err := toml.DecodeFile(path, &sc)
	if err != nil {
		return StorageConfig{}, fmt.Errorf("read config file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return StorageConfig{}, fmt.Errorf("config file %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return sc, nil
}

// ApplyEnv overrides storage settings from the environment.
func (s *StorageConfig) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set(&s.Minio.Endpoint, EnvMinioEndpoint)
	set(&s.Minio.AccessKey, EnvMinioAccessKey)
	set(&s.Minio.SecretKey, EnvMinioSecretKey)
	set(&s.Cache.Dir, EnvCacheDir)
	set(&s.Artifacts.Dir, EnvArtifactDir)
	if v, ok := lookup("MVNFLOW_MINIO_USE_SSL"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			s.Minio.UseSSL = b
		}
	}
}

// LoadInputsFile reads workflow inputs from a YAML mapping of names to
// scalar values.
func LoadInputsFile(path string) (map[string]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read inputs file: %w", err)
	}
	inputs := map[string]string{}
	if err := yaml.Unmarshal(b, &inputs); err != nil {
		return nil, fmt.Errorf("parse inputs file %s: %w", path, err)
	}
	return inputs, nil
}

// DefaultCacheDir is where the fs cache backend lives when unconfigured.
func DefaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "mvnflow", "cache")
	}
	return filepath.Join(os.TempDir(), "mvnflow-cache")
}
