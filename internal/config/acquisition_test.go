package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/interval.report/internal/fsutil"
)

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := EmptyAcquisitionConfig()

	if cfg.GetDataPort() != "/dev/ttyUSB0" {
		t.Errorf("GetDataPort() = %s, want /dev/ttyUSB0", cfg.GetDataPort())
	}
	if cfg.GetCommandPort() != "" {
		t.Errorf("GetCommandPort() = %s, want empty", cfg.GetCommandPort())
	}
	if cfg.GetBaudRate() != 115200 {
		t.Errorf("GetBaudRate() = %d, want 115200", cfg.GetBaudRate())
	}
	if cfg.GetReadTimeout() != 5*time.Millisecond {
		t.Errorf("GetReadTimeout() = %v, want 5ms", cfg.GetReadTimeout())
	}
	if cfg.GetDebounceMicros() != 10 {
		t.Errorf("GetDebounceMicros() = %d, want 10", cfg.GetDebounceMicros())
	}
	if cfg.GetQueueCapacity() != 0 {
		t.Errorf("GetQueueCapacity() = %d, want 0", cfg.GetQueueCapacity())
	}
	if cfg.GetDispatchInterval() != 100*time.Millisecond {
		t.Errorf("GetDispatchInterval() = %v, want 100ms", cfg.GetDispatchInterval())
	}
	if cfg.GetSilenceTimeout() != 5*time.Second {
		t.Errorf("GetSilenceTimeout() = %v, want 5s", cfg.GetSilenceTimeout())
	}
	if cfg.GetBackoffBase() != 500*time.Millisecond {
		t.Errorf("GetBackoffBase() = %v, want 500ms", cfg.GetBackoffBase())
	}
	if cfg.GetBackoffCap() != 30*time.Second {
		t.Errorf("GetBackoffCap() = %v, want 30s", cfg.GetBackoffCap())
	}
	if cfg.GetMaxConnectAttempts() != 0 {
		t.Errorf("GetMaxConnectAttempts() = %d, want 0", cfg.GetMaxConnectAttempts())
	}
	if cfg.GetListenAddr() != ":8080" {
		t.Errorf("GetListenAddr() = %s, want :8080", cfg.GetListenAddr())
	}
	if cfg.GetDBPath() != "geiger.db" {
		t.Errorf("GetDBPath() = %s, want geiger.db", cfg.GetDBPath())
	}
	if cfg.GetCaptureDir() != "" {
		t.Errorf("GetCaptureDir() = %s, want empty", cfg.GetCaptureDir())
	}
	if cfg.GetUnits() != "us" {
		t.Errorf("GetUnits() = %s, want us", cfg.GetUnits())
	}
}

func TestLoadAcquisitionConfig(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()

	testJSON := `{
  "data_port": "/dev/ttyACM0",
  "command_port": "/dev/ttyACM1",
  "baud_rate": 9600,
  "read_timeout": "10ms",
  "debounce_micros": 25,
  "queue_capacity": 1024,
  "dispatch_interval": "50ms",
  "silence_timeout": "2s",
  "backoff_base": "250ms",
  "backoff_cap": "10s",
  "max_connect_attempts": 5,
  "listen_addr": ":9090",
  "db_path": "/var/lib/geiger/geiger.db",
  "capture_dir": "/var/lib/geiger/captures",
  "units": "ms"
}`
	if err := mfs.WriteFile("/etc/geiger/config.json", []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadAcquisitionConfig(mfs, "/etc/geiger/config.json")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.GetDataPort() != "/dev/ttyACM0" {
		t.Errorf("GetDataPort() = %s, want /dev/ttyACM0", cfg.GetDataPort())
	}
	if cfg.GetCommandPort() != "/dev/ttyACM1" {
		t.Errorf("GetCommandPort() = %s, want /dev/ttyACM1", cfg.GetCommandPort())
	}
	if cfg.GetBaudRate() != 9600 {
		t.Errorf("GetBaudRate() = %d, want 9600", cfg.GetBaudRate())
	}
	if cfg.GetReadTimeout() != 10*time.Millisecond {
		t.Errorf("GetReadTimeout() = %v, want 10ms", cfg.GetReadTimeout())
	}
	if cfg.GetDebounceMicros() != 25 {
		t.Errorf("GetDebounceMicros() = %d, want 25", cfg.GetDebounceMicros())
	}
	if cfg.GetQueueCapacity() != 1024 {
		t.Errorf("GetQueueCapacity() = %d, want 1024", cfg.GetQueueCapacity())
	}
	if cfg.GetDispatchInterval() != 50*time.Millisecond {
		t.Errorf("GetDispatchInterval() = %v, want 50ms", cfg.GetDispatchInterval())
	}
	if cfg.GetSilenceTimeout() != 2*time.Second {
		t.Errorf("GetSilenceTimeout() = %v, want 2s", cfg.GetSilenceTimeout())
	}
	if cfg.GetBackoffBase() != 250*time.Millisecond {
		t.Errorf("GetBackoffBase() = %v, want 250ms", cfg.GetBackoffBase())
	}
	if cfg.GetBackoffCap() != 10*time.Second {
		t.Errorf("GetBackoffCap() = %v, want 10s", cfg.GetBackoffCap())
	}
	if cfg.GetMaxConnectAttempts() != 5 {
		t.Errorf("GetMaxConnectAttempts() = %d, want 5", cfg.GetMaxConnectAttempts())
	}
	if cfg.GetListenAddr() != ":9090" {
		t.Errorf("GetListenAddr() = %s, want :9090", cfg.GetListenAddr())
	}
	if cfg.GetDBPath() != "/var/lib/geiger/geiger.db" {
		t.Errorf("GetDBPath() = %s, want /var/lib/geiger/geiger.db", cfg.GetDBPath())
	}
	if cfg.GetCaptureDir() != "/var/lib/geiger/captures" {
		t.Errorf("GetCaptureDir() = %s, want /var/lib/geiger/captures", cfg.GetCaptureDir())
	}
	if cfg.GetUnits() != "ms" {
		t.Errorf("GetUnits() = %s, want ms", cfg.GetUnits())
	}
}

func TestLoadAcquisitionConfigPartial(t *testing.T) {
	// Partial config: only override the data port; everything else should
	// keep defaults.
	mfs := fsutil.NewMemoryFileSystem()

	partialJSON := `{
  "data_port": "/dev/ttyS1"
}`
	if err := mfs.WriteFile("/partial.json", []byte(partialJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadAcquisitionConfig(mfs, "/partial.json")
	if err != nil {
		t.Fatalf("Failed to load partial config: %v", err)
	}

	// Overridden value
	if cfg.GetDataPort() != "/dev/ttyS1" {
		t.Errorf("Expected overridden DataPort /dev/ttyS1, got %s", cfg.GetDataPort())
	}
	// Default values should be preserved
	if cfg.GetBaudRate() != 115200 {
		t.Errorf("Expected default BaudRate 115200, got %d", cfg.GetBaudRate())
	}
	if cfg.GetDispatchInterval() != 100*time.Millisecond {
		t.Errorf("Expected default DispatchInterval 100ms, got %v", cfg.GetDispatchInterval())
	}
	if cfg.GetDebounceMicros() != 10 {
		t.Errorf("Expected default DebounceMicros 10, got %d", cfg.GetDebounceMicros())
	}
}

func TestLoadAcquisitionConfigMissing(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	_, err := LoadAcquisitionConfig(mfs, "/nonexistent/config.json")
	if err == nil {
		t.Error("Expected error when loading missing file, got nil")
	}
}

func TestLoadAcquisitionConfigInvalidJSON(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()

	invalidJSON := `{
  "data_port": 42
`
	if err := mfs.WriteFile("/invalid.json", []byte(invalidJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	_, err := LoadAcquisitionConfig(mfs, "/invalid.json")
	if err == nil {
		t.Error("Expected error when loading invalid JSON, got nil")
	}
}

func TestLoadAcquisitionConfigRejectsNonJSON(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	_, err := LoadAcquisitionConfig(mfs, "/some/path/config.yaml")
	if err == nil {
		t.Error("Expected error for non-.json extension, got nil")
	}
}

func TestLoadAcquisitionConfigRejectsLargeFile(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()

	// Create a file larger than 1MB
	largeData := make([]byte, 2*1024*1024) // 2MB
	if err := mfs.WriteFile("/large.json", largeData, 0644); err != nil {
		t.Fatalf("Failed to write large file: %v", err)
	}

	_, err := LoadAcquisitionConfig(mfs, "/large.json")
	if err == nil {
		t.Error("Expected error for file size > 1MB, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *AcquisitionConfig
		wantErr bool
	}{
		{
			name:    "empty config is valid",
			cfg:     &AcquisitionConfig{},
			wantErr: false,
		},
		{
			name: "nonstandard baud rate",
			cfg: &AcquisitionConfig{
				BaudRate: ptrInt(12345),
			},
			wantErr: true,
		},
		{
			name: "invalid read timeout",
			cfg: &AcquisitionConfig{
				ReadTimeout: ptrString("fast"),
			},
			wantErr: true,
		},
		{
			name: "negative read timeout",
			cfg: &AcquisitionConfig{
				ReadTimeout: ptrString("-5ms"),
			},
			wantErr: true,
		},
		{
			name: "negative debounce",
			cfg: &AcquisitionConfig{
				DebounceMicros: ptrInt(-1),
			},
			wantErr: true,
		},
		{
			name: "excessive debounce",
			cfg: &AcquisitionConfig{
				DebounceMicros: ptrInt(2000000),
			},
			wantErr: true,
		},
		{
			name: "negative queue capacity",
			cfg: &AcquisitionConfig{
				QueueCapacity: ptrInt(-1),
			},
			wantErr: true,
		},
		{
			name: "zero dispatch interval",
			cfg: &AcquisitionConfig{
				DispatchInterval: ptrString("0s"),
			},
			wantErr: true,
		},
		{
			name: "negative silence timeout disables watchdog",
			cfg: &AcquisitionConfig{
				SilenceTimeout: ptrString("-1ms"),
			},
			wantErr: false,
		},
		{
			name: "unparseable silence timeout",
			cfg: &AcquisitionConfig{
				SilenceTimeout: ptrString("forever"),
			},
			wantErr: true,
		},
		{
			name: "negative backoff base",
			cfg: &AcquisitionConfig{
				BackoffBase: ptrString("-1s"),
			},
			wantErr: true,
		},
		{
			name: "negative max connect attempts",
			cfg: &AcquisitionConfig{
				MaxConnectAttempts: ptrInt(-2),
			},
			wantErr: true,
		},
		{
			name: "unknown units",
			cfg: &AcquisitionConfig{
				Units: ptrString("mph"),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetDispatchInterval(t *testing.T) {
	tests := []struct {
		name string
		cfg  *AcquisitionConfig
		want time.Duration
	}{
		{
			name: "50 milliseconds",
			cfg: &AcquisitionConfig{
				DispatchInterval: ptrString("50ms"),
			},
			want: 50 * time.Millisecond,
		},
		{
			name: "1 second",
			cfg: &AcquisitionConfig{
				DispatchInterval: ptrString("1s"),
			},
			want: 1 * time.Second,
		},
		{
			name: "nil pointer returns default",
			cfg:  &AcquisitionConfig{},
			want: 100 * time.Millisecond,
		},
		{
			name: "empty string returns default",
			cfg: &AcquisitionConfig{
				DispatchInterval: ptrString(""),
			},
			want: 100 * time.Millisecond,
		},
		{
			name: "invalid duration returns default",
			cfg: &AcquisitionConfig{
				DispatchInterval: ptrString("invalid"),
			},
			want: 100 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cfg.GetDispatchInterval()
			if got != tt.want {
				t.Errorf("GetDispatchInterval() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()

	cfg := &AcquisitionConfig{
		DataPort:         ptrString("/dev/ttyACM0"),
		BaudRate:         ptrInt(57600),
		DebounceMicros:   ptrInt(15),
		DispatchInterval: ptrString("200ms"),
		CaptureDir:       ptrString("/captures"),
		Units:            ptrString("ms"),
	}

	if err := cfg.Save(mfs, "/etc/geiger/config.json"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if mfs.Exists("/etc/geiger/config.json.tmp") {
		t.Error("expected temp file to be renamed away")
	}

	loaded, err := LoadAcquisitionConfig(mfs, "/etc/geiger/config.json")
	if err != nil {
		t.Fatalf("Load after Save failed: %v", err)
	}

	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Errorf("config changed across save/load round trip (-want +got):\n%s", diff)
	}
}

func TestSaveRejectsInvalid(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()

	cfg := &AcquisitionConfig{Units: ptrString("furlongs")}
	if err := cfg.Save(mfs, "/config.json"); err == nil {
		t.Error("expected error saving invalid config, got nil")
	}
	if mfs.Exists("/config.json") {
		t.Error("invalid config must not be written")
	}
}
