package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Backend  BackendConfig  `yaml:"backend"`
	Identify IdentifyConfig `yaml:"identify"`
	Camera   CameraConfig   `yaml:"camera"`
	Log      LogConfig      `yaml:"log"`
	Web      WebConfig      `yaml:"web"`
}

type BackendConfig struct {
	URL       string        `yaml:"url"`        // API root, e.g. https://attendance.example.com/api
	Timeout   time.Duration `yaml:"timeout"`    // per request
	RateLimit int           `yaml:"rate_limit"` // requests per second, 0 disables
	RateBurst int           `yaml:"rate_burst"`
}

type IdentifyConfig struct {
	Strategy            string        `yaml:"strategy"`  // remote or local
	Threshold           float64       `yaml:"threshold"` // local strategy match threshold
	EmbeddingURL        string        `yaml:"embedding_url"`
	EmbeddingTimeout    time.Duration `yaml:"embedding_timeout"`
	DescriptorCachePath string        `yaml:"descriptor_cache_path"` // empty keeps descriptors in memory
	LocalIndex          string        `yaml:"local_index"`           // "hnsw" enables the candidate index
}

// UseIndex reports whether the local strategy should pre-select candidates with HNSW.
func (c IdentifyConfig) UseIndex() bool {
	return strings.EqualFold(c.LocalIndex, "hnsw")
}

type CameraConfig struct {
	Dir                string `yaml:"dir"` // one sub-directory per capture device
	UserAgent          string `yaml:"user_agent"`
	FacingModeOnly     bool   `yaml:"facing_mode_only"`
	MaxUploadDimension int    `yaml:"max_upload_dimension"` // 0 uploads frames at full size
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type WebConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	AllowedOrigins []string      `yaml:"allowed_origins"` // localhost is always allowed
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Addr returns host:port for the HTTP listener.
func (c WebConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// envInt reads an environment variable and parses it as a non-negative integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a positive float, falling back to defaultVal.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envDuration accepts Go durations ("45s") or plain seconds ("45").
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := strings.TrimSpace(os.Getenv(key)); s != "" {
		return s
	}
	return defaultVal
}

// envList reads a comma separated list, dropping empty items.
func envList(key string, defaultVal []string) []string {
	s := os.Getenv(key)
	if strings.TrimSpace(s) == "" {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Defaults returns the embedded defaults without applying the environment.
func Defaults() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return &cfg
}

// Load returns the embedded defaults overridden by environment variables.
func Load() *Config {
	d := Defaults()

	return &Config{
		Backend: BackendConfig{
			URL:       strings.TrimRight(envString("BACKEND_URL", d.Backend.URL), "/"),
			Timeout:   envDuration("BACKEND_TIMEOUT", d.Backend.Timeout),
			RateLimit: envInt("BACKEND_RATE_LIMIT", d.Backend.RateLimit),
			RateBurst: envInt("BACKEND_RATE_BURST", d.Backend.RateBurst),
		},
		Identify: IdentifyConfig{
			Strategy:            strings.ToLower(envString("IDENTIFY_STRATEGY", d.Identify.Strategy)),
			Threshold:           envFloat("MATCH_THRESHOLD", d.Identify.Threshold),
			EmbeddingURL:        envString("EMBEDDING_URL", d.Identify.EmbeddingURL),
			EmbeddingTimeout:    envDuration("EMBEDDING_TIMEOUT", d.Identify.EmbeddingTimeout),
			DescriptorCachePath: envString("DESCRIPTOR_CACHE_PATH", d.Identify.DescriptorCachePath),
			LocalIndex:          envString("LOCAL_INDEX", d.Identify.LocalIndex),
		},
		Camera: CameraConfig{
			Dir:                envString("CAMERA_DIR", d.Camera.Dir),
			UserAgent:          envString("CAMERA_USER_AGENT", d.Camera.UserAgent),
			FacingModeOnly:     envBool("CAMERA_FACING_MODE_ONLY", d.Camera.FacingModeOnly),
			MaxUploadDimension: envInt("MAX_UPLOAD_DIMENSION", d.Camera.MaxUploadDimension),
		},
		Log: LogConfig{
			Level: envString("LOG_LEVEL", d.Log.Level),
			File:  envString("LOG_FILE", d.Log.File),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", d.Web.Host),
			Port:           envInt("WEB_PORT", d.Web.Port),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS", d.Web.AllowedOrigins),
			RequestTimeout: envDuration("WEB_REQUEST_TIMEOUT", d.Web.RequestTimeout),
		},
	}
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	if c.Backend.URL == "" {
		return fmt.Errorf("BACKEND_URL is required")
	}
	switch c.Identify.Strategy {
	case "remote":
	case "local":
		if c.Identify.EmbeddingURL == "" {
			return fmt.Errorf("EMBEDDING_URL is required for the local identification strategy")
		}
	default:
		return fmt.Errorf("unknown IDENTIFY_STRATEGY %q, expected remote or local", c.Identify.Strategy)
	}
	if c.Identify.LocalIndex != "" && !c.Identify.UseIndex() {
		return fmt.Errorf("unknown LOCAL_INDEX %q, expected hnsw or empty", c.Identify.LocalIndex)
	}
	return nil
}
