package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type SourceType string

const (
	SourceLocal  SourceType = "Local"
	SourceWebcam SourceType = "Web-Camera"

	TransportHTTP = "http"
	TransportWS   = "ws"

	FacingEnvironment = "environment"
	FacingUser        = "user"

	DefaultConfigPath string = "config.json"
	DefaultAPIBaseURL string = "http://localhost:8080"

	EnvAPIBaseURL = "HELMET_API_BASE_URL"
	EnvTransport  = "HELMET_TRANSPORT"
	EnvLogLevel   = "HELMET_LOG_LEVEL"
)

var SourcesList = [...]string{
	string(SourceWebcam),
	string(SourceLocal),
}

type LocalConfig struct {
	Path string `json:"path"`
}

type WebcamConfig struct {
	DeviceID string `json:"device_id"`
	Facing   string `json:"facing" validate:"omitempty,oneof=environment user"`
}

// overrides come from the environment or flags and are never written back.
type overrides struct {
	apiBaseURL string
	transport  string
	logLevel   string
}

type Config struct {
	mu   sync.RWMutex
	path string
	env  overrides

	APIBaseURL       string `json:"api_base_url" validate:"required,url"`
	Transport        string `json:"transport" validate:"oneof=http ws"`
	RequestTimeoutMs int    `json:"request_timeout_ms" validate:"min=0"`

	LiveIntervalMs int  `json:"live_interval_ms" validate:"min=100"`
	JPEGQuality    int  `json:"jpeg_quality" validate:"min=1,max=100"`
	DiscardStale   bool `json:"discard_stale"`

	ActiveSource SourceType `json:"active_source" validate:"oneof=Local Web-Camera"`
	TargetFPS    uint       `json:"target_fps" validate:"min=1"`
	ScaledWidth  int        `json:"scaled_width" validate:"min=16"`
	ScaledHeight int        `json:"scaled_height" validate:"min=16"`

	Local  LocalConfig  `json:"local"`
	Webcam WebcamConfig `json:"webcam"`

	LogLevel string `json:"log_level" validate:"omitempty,oneof=trace debug info warn warning error"`
	LogFile  string `json:"log_file"`
}

func (c *Config) GetAPIBaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u := c.APIBaseURL
	if c.env.apiBaseURL != "" {
		u = c.env.apiBaseURL
	}
	return strings.TrimRight(u, "/")
}

// OverrideAPIBaseURL points this run at u without touching the saved value.
func (c *Config) OverrideAPIBaseURL(u string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.env.apiBaseURL = u
}

func (c *Config) GetTransport() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.env.transport != "" {
		return c.env.transport
	}
	return c.Transport
}

func (c *Config) GetLogLevel() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.env.logLevel != "" {
		return c.env.logLevel
	}
	return c.LogLevel
}

func (c *Config) GetLogFile() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.LogFile
}

func (c *Config) GetJPEGQuality() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.JPEGQuality
}

func (c *Config) GetDiscardStale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.DiscardStale
}

func (c *Config) SetAPIBaseURL(u string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.APIBaseURL = u
}

func (c *Config) GetRequestTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

func (c *Config) GetLiveInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.LiveIntervalMs) * time.Millisecond
}

func (c *Config) SetLiveInterval(ms int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.LiveIntervalMs = ms
}

func (c *Config) GetFPS() uint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.TargetFPS
}

func (c *Config) SetFPS(fps uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.TargetFPS = fps
}

func (c *Config) GetWidth() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ScaledWidth
}

func (c *Config) SetWidth(width int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ScaledWidth = width
}

func (c *Config) GetHeight() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ScaledHeight
}

func (c *Config) SetHeight(height int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ScaledHeight = height
}

func (c *Config) GetSource() SourceType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ActiveSource
}

func (c *Config) SetSource(s SourceType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ActiveSource = s
}

func (c *Config) GetDeviceID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Webcam.DeviceID
}

func (c *Config) SetDeviceID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Webcam.DeviceID = id
}

func (c *Config) GetFacing() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Webcam.Facing
}

func (c *Config) GetLocalPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Local.Path
}

func (c *Config) SetLocalPath(p string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Local.Path = p
}

func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	checks := []struct{ name, value, tag string }{
		{EnvAPIBaseURL, c.env.apiBaseURL, "omitempty,url"},
		{EnvTransport, c.env.transport, "omitempty,oneof=http ws"},
		{EnvLogLevel, c.env.logLevel, "omitempty,oneof=trace debug info warn warning error"},
	}
	for _, ch := range checks {
		if err := v.Var(ch.value, ch.tag); err != nil {
			return fmt.Errorf("invalid override %s=%q: %w", ch.name, ch.value, err)
		}
	}
	return nil
}

func (c *Config) Save(path string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}

// SaveByDefault writes back to the file the config was loaded from.
func (c *Config) SaveByDefault() error {
	c.mu.RLock()
	path := c.path
	c.mu.RUnlock()

	if path == "" {
		path = DefaultConfigPath
	}
	return c.Save(path)
}

// LoadConfigFile reads path over the defaults, then applies .env and
// process environment overrides. A missing file is not an error.
func LoadConfigFile(path string) (*Config, error) {
	cfg := NewDefaultConfig()
	cfg.path = path

	if f, err := os.Open(path); err == nil {
		defer f.Close()
		if err := json.NewDecoder(f).Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	_ = godotenv.Load()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.env = overrides{
		apiBaseURL: os.Getenv(EnvAPIBaseURL),
		transport:  strings.ToLower(os.Getenv(EnvTransport)),
		logLevel:   strings.ToLower(os.Getenv(EnvLogLevel)),
	}
}

func NewDefaultConfig() *Config {
	return &Config{
		APIBaseURL:       DefaultAPIBaseURL,
		Transport:        TransportHTTP,
		RequestTimeoutMs: 15000,
		LiveIntervalMs:   1000,
		JPEGQuality:      85,
		ActiveSource:     SourceWebcam,
		Webcam:           WebcamConfig{Facing: FacingEnvironment},
		TargetFPS:        24,
		ScaledWidth:      1280,
		ScaledHeight:     720,
		LogLevel:         "info",
	}
}
