// Package config holds the daemon's JSON configuration. Pointer fields
// distinguish "absent" from zero so partial files override only what they
// name; the Get* accessors supply defaults for everything else.
package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/banshee-data/interval.report/internal/acquisition"
	"github.com/banshee-data/interval.report/internal/capture"
	"github.com/banshee-data/interval.report/internal/fsutil"
	"github.com/banshee-data/interval.report/internal/pipeline"
	"github.com/banshee-data/interval.report/internal/serialio"
	"github.com/banshee-data/interval.report/internal/units"
)

// AcquisitionConfig represents the daemon configuration. The schema matches
// the /api/config endpoint so the same JSON serves both startup files and
// runtime inspection.
type AcquisitionConfig struct {
	// Serial params
	DataPort    *string `json:"data_port,omitempty"`
	CommandPort *string `json:"command_port,omitempty"`
	BaudRate    *int    `json:"baud_rate,omitempty"`
	ReadTimeout *string `json:"read_timeout,omitempty"` // duration string like "5ms"

	// Decode and dispatch params
	DebounceMicros   *int    `json:"debounce_micros,omitempty"`
	QueueCapacity    *int    `json:"queue_capacity,omitempty"` // 0 is unbounded
	DispatchInterval *string `json:"dispatch_interval,omitempty"` // duration string like "100ms"

	// Connection policy params
	SilenceTimeout     *string `json:"silence_timeout,omitempty"` // negative disables the watchdog
	BackoffBase        *string `json:"backoff_base,omitempty"`
	BackoffCap         *string `json:"backoff_cap,omitempty"`
	MaxConnectAttempts *int    `json:"max_connect_attempts,omitempty"` // 0 retries forever

	// Host params
	ListenAddr *string `json:"listen_addr,omitempty"`
	DBPath     *string `json:"db_path,omitempty"`
	CaptureDir *string `json:"capture_dir,omitempty"` // empty disables the raw tee
	Units      *string `json:"units,omitempty"`
}

// Helper functions to create pointers
func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }

// EmptyAcquisitionConfig returns an AcquisitionConfig with all fields nil,
// meaning every accessor falls back to its default.
func EmptyAcquisitionConfig() *AcquisitionConfig {
	return &AcquisitionConfig{}
}

// LoadAcquisitionConfig loads an AcquisitionConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size. Fields omitted from the JSON file retain their default
// values, so partial configs are safe.
func LoadAcquisitionConfig(fsys fsutil.FileSystem, path string) (*AcquisitionConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := fsys.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := fsys.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyAcquisitionConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Save writes the config atomically: marshal to a temp file next to the
// destination, then rename over it. A crash mid-save leaves the old file
// intact.
func (c *AcquisitionConfig) Save(fsys fsutil.FileSystem, path string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid configuration: %w", err)
	}

	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	data = append(data, '\n')

	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	tmpPath := cleanPath + ".tmp"
	if err := fsys.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp config: %w", err)
	}
	if err := fsys.Rename(tmpPath, cleanPath); err != nil {
		return fmt.Errorf("failed to replace config: %w", err)
	}
	return nil
}

// Validate checks that the configuration values are valid.
func (c *AcquisitionConfig) Validate() error {
	// Validate BaudRate against the standard serial speeds if set
	if c.BaudRate != nil {
		if _, err := (serialio.PortOptions{BaudRate: *c.BaudRate}).Normalize(); err != nil {
			return fmt.Errorf("invalid baud_rate: %w", err)
		}
	}

	// Validate ReadTimeout can be parsed and is positive if set
	if c.ReadTimeout != nil && *c.ReadTimeout != "" {
		d, err := time.ParseDuration(*c.ReadTimeout)
		if err != nil {
			return fmt.Errorf("invalid read_timeout '%s': %w", *c.ReadTimeout, err)
		}
		if d <= 0 {
			return fmt.Errorf("read_timeout must be positive, got %v", d)
		}
	}

	// Validate DebounceMicros if set
	if c.DebounceMicros != nil {
		if *c.DebounceMicros < 0 || *c.DebounceMicros > 1000000 {
			return fmt.Errorf("debounce_micros must be between 0 and 1000000, got %d", *c.DebounceMicros)
		}
	}

	// Validate QueueCapacity if set
	if c.QueueCapacity != nil {
		if *c.QueueCapacity < 0 {
			return fmt.Errorf("queue_capacity must be non-negative, got %d", *c.QueueCapacity)
		}
	}

	// Validate DispatchInterval can be parsed and is positive if set
	if c.DispatchInterval != nil && *c.DispatchInterval != "" {
		d, err := time.ParseDuration(*c.DispatchInterval)
		if err != nil {
			return fmt.Errorf("invalid dispatch_interval '%s': %w", *c.DispatchInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("dispatch_interval must be positive, got %v", d)
		}
	}

	// Validate SilenceTimeout can be parsed if set. Negative values are
	// allowed: they disable the watchdog.
	if c.SilenceTimeout != nil && *c.SilenceTimeout != "" {
		if _, err := time.ParseDuration(*c.SilenceTimeout); err != nil {
			return fmt.Errorf("invalid silence_timeout '%s': %w", *c.SilenceTimeout, err)
		}
	}

	// Validate BackoffBase can be parsed and is positive if set
	if c.BackoffBase != nil && *c.BackoffBase != "" {
		d, err := time.ParseDuration(*c.BackoffBase)
		if err != nil {
			return fmt.Errorf("invalid backoff_base '%s': %w", *c.BackoffBase, err)
		}
		if d <= 0 {
			return fmt.Errorf("backoff_base must be positive, got %v", d)
		}
	}

	// Validate BackoffCap can be parsed and is positive if set
	if c.BackoffCap != nil && *c.BackoffCap != "" {
		d, err := time.ParseDuration(*c.BackoffCap)
		if err != nil {
			return fmt.Errorf("invalid backoff_cap '%s': %w", *c.BackoffCap, err)
		}
		if d <= 0 {
			return fmt.Errorf("backoff_cap must be positive, got %v", d)
		}
	}

	// Validate MaxConnectAttempts if set
	if c.MaxConnectAttempts != nil {
		if *c.MaxConnectAttempts < 0 {
			return fmt.Errorf("max_connect_attempts must be non-negative, got %d", *c.MaxConnectAttempts)
		}
	}

	// Validate Units if set
	if c.Units != nil && *c.Units != "" {
		if !units.IsValid(*c.Units) {
			return fmt.Errorf("invalid units '%s': must be one of %s", *c.Units, units.GetValidUnitsString())
		}
	}

	return nil
}

// GetDataPort returns the data_port value or the default.
func (c *AcquisitionConfig) GetDataPort() string {
	if c.DataPort == nil || *c.DataPort == "" {
		return "/dev/ttyUSB0" // default
	}
	return *c.DataPort
}

// GetCommandPort returns the command_port value or the default. An empty
// result means the command channel is not configured.
func (c *AcquisitionConfig) GetCommandPort() string {
	if c.CommandPort == nil {
		return "" // default: command channel disabled
	}
	return *c.CommandPort
}

// GetBaudRate returns the baud_rate value or the default.
func (c *AcquisitionConfig) GetBaudRate() int {
	if c.BaudRate == nil {
		return serialio.DefaultBaudRate
	}
	return *c.BaudRate
}

// GetReadTimeout parses and returns the ReadTimeout as a time.Duration.
func (c *AcquisitionConfig) GetReadTimeout() time.Duration {
	if c.ReadTimeout == nil || *c.ReadTimeout == "" {
		return acquisition.DefaultReadTimeout
	}
	d, err := time.ParseDuration(*c.ReadTimeout)
	if err != nil {
		return acquisition.DefaultReadTimeout // default on parse error
	}
	return d
}

// GetDebounceMicros returns the debounce_micros value or the default.
func (c *AcquisitionConfig) GetDebounceMicros() uint32 {
	if c.DebounceMicros == nil {
		return capture.DefaultDebounceMicros
	}
	return uint32(*c.DebounceMicros)
}

// GetQueueCapacity returns the queue_capacity value or the default.
func (c *AcquisitionConfig) GetQueueCapacity() int {
	if c.QueueCapacity == nil {
		return 0 // default: unbounded
	}
	return *c.QueueCapacity
}

// GetDispatchInterval parses and returns the DispatchInterval as a time.Duration.
func (c *AcquisitionConfig) GetDispatchInterval() time.Duration {
	if c.DispatchInterval == nil || *c.DispatchInterval == "" {
		return pipeline.DefaultDispatchInterval
	}
	d, err := time.ParseDuration(*c.DispatchInterval)
	if err != nil {
		return pipeline.DefaultDispatchInterval // default on parse error
	}
	return d
}

// GetSilenceTimeout parses and returns the SilenceTimeout as a time.Duration.
func (c *AcquisitionConfig) GetSilenceTimeout() time.Duration {
	if c.SilenceTimeout == nil || *c.SilenceTimeout == "" {
		return acquisition.DefaultSilenceTimeout
	}
	d, err := time.ParseDuration(*c.SilenceTimeout)
	if err != nil {
		return acquisition.DefaultSilenceTimeout // default on parse error
	}
	return d
}

// GetBackoffBase parses and returns the BackoffBase as a time.Duration.
func (c *AcquisitionConfig) GetBackoffBase() time.Duration {
	if c.BackoffBase == nil || *c.BackoffBase == "" {
		return acquisition.DefaultBackoffBase
	}
	d, err := time.ParseDuration(*c.BackoffBase)
	if err != nil {
		return acquisition.DefaultBackoffBase // default on parse error
	}
	return d
}

// GetBackoffCap parses and returns the BackoffCap as a time.Duration.
func (c *AcquisitionConfig) GetBackoffCap() time.Duration {
	if c.BackoffCap == nil || *c.BackoffCap == "" {
		return acquisition.DefaultBackoffCap
	}
	d, err := time.ParseDuration(*c.BackoffCap)
	if err != nil {
		return acquisition.DefaultBackoffCap // default on parse error
	}
	return d
}

// GetMaxConnectAttempts returns the max_connect_attempts value or the default.
func (c *AcquisitionConfig) GetMaxConnectAttempts() int {
	if c.MaxConnectAttempts == nil {
		return 0 // default: retry forever
	}
	return *c.MaxConnectAttempts
}

// GetListenAddr returns the listen_addr value or the default.
func (c *AcquisitionConfig) GetListenAddr() string {
	if c.ListenAddr == nil || *c.ListenAddr == "" {
		return ":8080" // default
	}
	return *c.ListenAddr
}

// GetDBPath returns the db_path value or the default.
func (c *AcquisitionConfig) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return "geiger.db" // default
	}
	return *c.DBPath
}

// GetCaptureDir returns the capture_dir value or the default.
func (c *AcquisitionConfig) GetCaptureDir() string {
	if c.CaptureDir == nil {
		return "" // default: raw capture disabled
	}
	return *c.CaptureDir
}

// GetUnits returns the units value or the default.
func (c *AcquisitionConfig) GetUnits() string {
	if c.Units == nil || *c.Units == "" {
		return units.Micros
	}
	return *c.Units
}
