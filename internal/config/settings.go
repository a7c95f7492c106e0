package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the prefix for environment overrides of the timing settings
const EnvPrefix = "SIDEASSIST"

// Settings holds all user-configurable application settings organized by category.
type Settings struct {
	General GeneralSettings `json:"general"`
	App     AppSettings     `json:"app"`
	Paths   PathSettings    `json:"paths"`
	Network NetworkSettings `json:"network"`
	Timings TimingSettings  `json:"timings"`
}

// GeneralSettings contains application behavior settings.
type GeneralSettings struct {
	NotificationsEnabled bool `json:"notifications_enabled"`
	DirectDownloadOnly   bool `json:"direct_download_only"`
	RelaunchAfter        bool `json:"relaunch_after"`
	ConsoleLines         int  `json:"console_lines"`
}

// AppSettings identifies the tracked application.
type AppSettings struct {
	BundleID          string   `json:"bundle_id"`
	AppPath           string   `json:"app_path"`           // Path to the wrapped .app bundle
	LegacyExecutables []string `json:"legacy_executables"` // Older wrapped executable paths that also count as running
	ContainerPath     string   `json:"container_path"`     // Overrides container discovery when set
}

// PathSettings are relative to the container root.
type PathSettings struct {
	LogFile        string `json:"log_file"`
	SignalFile     string `json:"signal_file"`
	CacheDir       string `json:"cache_dir"`
	TransferConfig string `json:"transfer_config"`
	DownloadRoot   string `json:"download_root"`
}

// NetworkSettings contains HTTP client parameters for direct transfers.
type NetworkSettings struct {
	UserAgent           string `json:"user_agent"`
	ProxyURL            string `json:"proxy_url"`
	SkipTLSVerification bool   `json:"skip_tls_verification"`
	WorkerBufferSize    int    `json:"worker_buffer_size"`
}

// TimingSettings are the tunable heuristics. Each may be overridden from the
// environment, e.g. SIDEASSIST_LOG_RESET_WAIT=60s.
type TimingSettings struct {
	LogResetWait        time.Duration `json:"log_reset_wait" envconfig:"LOG_RESET_WAIT"`
	SignalWait          time.Duration `json:"signal_wait" envconfig:"SIGNAL_WAIT"`
	BundleDetectionWait time.Duration `json:"bundle_detection_wait" envconfig:"BUNDLE_DETECTION_WAIT"`
	IncompleteChunkWait time.Duration `json:"incomplete_chunk_wait" envconfig:"INCOMPLETE_CHUNK_WAIT"`
	NoTaskGiveUp        time.Duration `json:"no_task_give_up" envconfig:"NO_TASK_GIVE_UP"`
	StuckRecovery       time.Duration `json:"stuck_recovery" envconfig:"STUCK_RECOVERY"`
	PendingFinishSettle time.Duration `json:"pending_finish_settle" envconfig:"PENDING_FINISH_SETTLE"`
	ReopenPollInterval  time.Duration `json:"reopen_poll_interval" envconfig:"REOPEN_POLL_INTERVAL"`
	RetryDelay          time.Duration `json:"retry_delay" envconfig:"RETRY_DELAY"`
	TransferStall       time.Duration `json:"transfer_stall_timeout" envconfig:"TRANSFER_STALL_TIMEOUT"`
	MaxTransferRetries  int           `json:"max_transfer_retries" envconfig:"MAX_TRANSFER_RETRIES"`
	ExternalStall       time.Duration `json:"external_stall_timeout" envconfig:"EXTERNAL_STALL_TIMEOUT"`
	ExternalMaxRestarts int           `json:"external_max_restarts" envconfig:"EXTERNAL_MAX_RESTARTS"`
}

// SettingMeta provides metadata for a single setting (for `settings` output).
type SettingMeta struct {
	Key         string
	Label       string
	Description string
	Type        string
}

// GetSettingsMetadata returns metadata for the user-facing settings by category.
func GetSettingsMetadata() map[string][]SettingMeta {
	return map[string][]SettingMeta{
		"General": {
			{Key: "notifications_enabled", Label: "Notifications", Description: "Post a notification when a session finishes.", Type: "bool"},
			{Key: "direct_download_only", Label: "Direct Download Only", Description: "Only fetch direct-install files; leave chunk downloads to the app.", Type: "bool"},
			{Key: "relaunch_after", Label: "Relaunch After", Description: "Relaunch the app when a session finishes.", Type: "bool"},
			{Key: "console_lines", Label: "Console Lines", Description: "Number of console lines kept in memory.", Type: "int"},
		},
		"App": {
			{Key: "bundle_id", Label: "Bundle ID", Description: "Bundle identifier of the tracked application.", Type: "string"},
			{Key: "app_path", Label: "App Path", Description: "Path of the wrapped application bundle.", Type: "string"},
			{Key: "container_path", Label: "Container Path", Description: "Override for the app's data container. Leave empty to discover it.", Type: "string"},
		},
		"Network": {
			{Key: "user_agent", Label: "User Agent", Description: "Custom User-Agent for direct transfers. Leave empty for default.", Type: "string"},
			{Key: "proxy_url", Label: "Proxy URL", Description: "HTTP or SOCKS5 proxy URL. Leave empty to use system default.", Type: "string"},
		},
		"Timings": {
			{Key: "log_reset_wait", Label: "Log Reset Wait", Description: "How long to wait for the app to rewrite its log after launch.", Type: "duration"},
			{Key: "signal_wait", Label: "Signal Wait", Description: "How long to wait for the progress file to change after launch.", Type: "duration"},
			{Key: "stuck_recovery", Label: "Stuck Recovery", Description: "Nudge the app after this long without progress.", Type: "duration"},
			{Key: "transfer_stall_timeout", Label: "Transfer Stall Timeout", Description: "Abort and retry a direct transfer after this long without data.", Type: "duration"},
			{Key: "max_transfer_retries", Label: "Max Transfer Retries", Description: "Retry bound for a failing transfer (0 = until cancelled).", Type: "int"},
		},
	}
}

// CategoryOrder returns the order of categories for display.
func CategoryOrder() []string {
	return []string{"General", "App", "Network", "Timings"}
}

// DefaultSettings returns a new Settings instance with sensible defaults.
func DefaultSettings() *Settings {
	return &Settings{
		General: GeneralSettings{
			NotificationsEnabled: true,
			DirectDownloadOnly:   false,
			RelaunchAfter:        true,
			ConsoleLines:         200,
		},
		App: AppSettings{
			BundleID: "com.kurogame.wutheringwaves.global",
			AppPath:  "~/Library/Containers/io.playcover.PlayCover/Applications/com.kurogame.wutheringwaves.global.app",
		},
		Paths: PathSettings{
			LogFile:        "Data/Library/Client/Saved/Logs/Client.log",
			SignalFile:     "Data/Library/Client/Saved/Resources/ResourceProgress.json",
			CacheDir:       "Data/Library/Caches/Downloads",
			TransferConfig: "Data/Library/Client/Saved/Config/IOS/Transfer.ini",
			DownloadRoot:   "Data/Library/Client/Saved/Resources",
		},
		Timings: TimingSettings{
			ExternalMaxRestarts: 5,
		},
	}
}

// LoadSettings loads settings from disk. Returns defaults if file doesn't exist.
// Environment overrides are applied on top of either.
func LoadSettings() (*Settings, error) {
	path := GetSettingsPath()

	settings := DefaultSettings() // Start with defaults to fill any missing fields
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := json.Unmarshal(data, settings); err != nil {
			return nil, fmt.Errorf("failed to parse settings: %w", err)
		}
	}

	if err := ApplyEnv(settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// ApplyEnv overlays SIDEASSIST_* environment variables onto the timing settings.
func ApplyEnv(s *Settings) error {
	if err := envconfig.Process(EnvPrefix, &s.Timings); err != nil {
		return fmt.Errorf("invalid timing override: %w", err)
	}
	return nil
}

// SaveSettings saves settings to disk atomically.
func SaveSettings(s *Settings) error {
	path := GetSettingsPath()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	// Atomic write: write to temp file, then rename
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return err
	}

	return os.Rename(tempPath, path)
}
