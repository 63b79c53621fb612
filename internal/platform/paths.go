// Package platform resolves per-user config and data locations.
package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const defaultAppName = "taskdeck"

// HomeEnv names the variable that pins every path under one root directory.
const HomeEnv = "TASKDECK_HOME"

// Paths holds the resolved on-disk locations for one app instance.
type Paths struct {
	ConfigPath string
	EnvPath    string
	DataDir    string
	DBPath     string
	LogDir     string
}

// Options defines optional settings for path resolution.
type Options struct {
	AppName string
	DevMode bool
}

// Base holds the OS-reported user directories.
type Base struct {
	ConfigDir string
	DataDir   string
}

// DefaultPaths returns the paths for the default app name.
func DefaultPaths() (Paths, error) {
	return DefaultPathsWithOptions(Options{})
}

// DefaultPathsWithOptions resolves paths for the current OS and environment.
// Dev mode appends "-dev" to the app name so dev runs never share state.
func DefaultPathsWithOptions(opts Options) (Paths, error) {
	appName := strings.TrimSpace(opts.AppName)
	if appName == "" {
		appName = defaultAppName
	}
	if opts.DevMode {
		appName += "-dev"
	}
	base, err := userBase(runtime.GOOS)
	if err != nil {
		return Paths{}, err
	}
	return Resolve(runtime.GOOS, os.Getenv, base, appName)
}

func userBase(goos string) (Base, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return Base{}, fmt.Errorf("user config dir: %w", err)
	}
	base := Base{ConfigDir: configDir, DataDir: configDir}
	if goos == "linux" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Base{}, fmt.Errorf("user home dir: %w", err)
		}
		base.DataDir = filepath.Join(home, ".local", "share")
	}
	return base, nil
}

// Resolve computes paths from explicit inputs. HomeEnv wins over every OS
// convention; otherwise XDG variables apply on linux and APPDATA/LOCALAPPDATA
// on windows.
func Resolve(goos string, getenv func(string) string, base Base, appName string) (Paths, error) {
	appName = strings.TrimSpace(appName)
	if appName == "" {
		return Paths{}, fmt.Errorf("empty app name")
	}
	if getenv == nil {
		getenv = func(string) string { return "" }
	}
	lookup := func(key string) string { return strings.TrimSpace(getenv(key)) }

	if home := lookup(HomeEnv); home != "" {
		root := filepath.Join(home, appName)
		return layoutUnder(root, root, appName), nil
	}

	if base.ConfigDir == "" || base.DataDir == "" {
		return Paths{}, fmt.Errorf("empty base dirs")
	}
	configVar, dataVar := "", ""
	switch goos {
	case "linux":
		configVar, dataVar = "XDG_CONFIG_HOME", "XDG_DATA_HOME"
	case "windows":
		configVar, dataVar = "APPDATA", "LOCALAPPDATA"
	}
	configRoot, dataRoot := base.ConfigDir, base.DataDir
	if v := lookup(configVar); configVar != "" && v != "" {
		configRoot = v
	}
	if v := lookup(dataVar); dataVar != "" && v != "" {
		dataRoot = v
	}
	return layoutUnder(filepath.Join(configRoot, appName), filepath.Join(dataRoot, appName), appName), nil
}

func layoutUnder(configDir, dataDir, appName string) Paths {
	return Paths{
		ConfigPath: filepath.Join(configDir, "config.toml"),
		EnvPath:    filepath.Join(configDir, ".env"),
		DataDir:    dataDir,
		DBPath:     filepath.Join(dataDir, appName+".db"),
		LogDir:     filepath.Join(dataDir, "logs"),
	}
}
