package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// ErrContainerNotFound is returned when the tracked app's data container cannot be located
var ErrContainerNotFound = errors.New("app container not found")

// GetAppDir returns the per-user sideassist directory
func GetAppDir() string {
	base, err := os.UserConfigDir()
	if err != nil || base == "" {
		home, _ := os.UserHomeDir()
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "sideassist")
}

// GetSettingsPath returns the path to the settings JSON file.
func GetSettingsPath() string {
	return filepath.Join(GetAppDir(), "settings.json")
}

// GetStateDir holds locks, the history database and transfer scratch space
func GetStateDir() string {
	return filepath.Join(GetAppDir(), "state")
}

// GetLogsDir holds debug logs
func GetLogsDir() string {
	return filepath.Join(GetAppDir(), "logs")
}

// GetTransferDir is the scoped cache root for in-flight transfer temp files
func GetTransferDir() string {
	return filepath.Join(GetStateDir(), "transfers")
}

// EnsureDirs creates every directory sideassist writes to
func EnsureDirs() error {
	for _, dir := range []string{GetAppDir(), GetStateDir(), GetLogsDir(), GetTransferDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// ExpandHome replaces a leading ~ with the user's home directory
func ExpandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		return filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return p
}

// Locator returns the root of the tracked application's data container
type Locator interface {
	ContainerPath() (string, bool)
}

// StaticLocator resolves the container from settings, falling back to the
// conventional ~/Library/Containers/<bundle id> location.
type StaticLocator struct {
	Override string
	BundleID string
}

// NewLocator builds a locator from the app settings
func NewLocator(app AppSettings) *StaticLocator {
	return &StaticLocator{Override: app.ContainerPath, BundleID: app.BundleID}
}

// ContainerPath returns the container root if it exists on disk
func (l *StaticLocator) ContainerPath() (string, bool) {
	var candidates []string
	if l.Override != "" {
		candidates = append(candidates, ExpandHome(l.Override))
	}
	if l.BundleID != "" {
		candidates = append(candidates, ExpandHome(filepath.Join("~/Library/Containers", l.BundleID)))
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.IsDir() {
			return c, true
		}
	}
	return "", false
}

// ContainerLayout is the set of absolute paths derived from a container root
type ContainerLayout struct {
	Root           string
	LogFile        string
	SignalFile     string
	CacheDir       string
	TransferConfig string
	DownloadRoot   string
}

// Layout joins the relative path settings onto the container root
func (p PathSettings) Layout(root string) ContainerLayout {
	return ContainerLayout{
		Root:           root,
		LogFile:        filepath.Join(root, p.LogFile),
		SignalFile:     filepath.Join(root, p.SignalFile),
		CacheDir:       filepath.Join(root, p.CacheDir),
		TransferConfig: filepath.Join(root, p.TransferConfig),
		DownloadRoot:   filepath.Join(root, p.DownloadRoot),
	}
}

// ResolveLayout locates the container and derives its layout
func ResolveLayout(loc Locator, paths PathSettings) (ContainerLayout, error) {
	root, ok := loc.ContainerPath()
	if !ok {
		return ContainerLayout{}, ErrContainerNotFound
	}
	return paths.Layout(root), nil
}
