// Package config loads launcher settings and build parameter defaults.
package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"paul-envs/internal/envgen"
)

// defaultsFile holds the user's preferred build parameters
const defaultsFile = "defaults.env"

// Config holds launcher settings
type Config struct {
	DataDir    string
	ConfigsDir string
	Launcher   string // external launcher used to list names, if any
	BaseImage  string
	Debug      bool
}

// Load reads configuration from environment variables. A defaults.env in
// the user config directory and a .env in the working directory are loaded
// first when present; variables already set take precedence.
func Load() *Config {
	loadEnvFile(filepath.Join(userConfigDir(), defaultsFile))
	loadEnvFile(".env")

	dataDir := getEnv("PAUL_ENVS_DATA_DIR", filepath.Join(xdgDir("XDG_DATA_HOME", ".local/share"), "paul-envs"))

	return &Config{
		DataDir:    dataDir,
		ConfigsDir: getEnv("PAUL_ENVS_CONFIGS_DIR", filepath.Join(dataDir, "configs")),
		Launcher:   getEnv("PAUL_ENVS_LAUNCHER", ""),
		BaseImage:  getEnv("PAUL_ENVS_BASE_IMAGE", envgen.DefaultBaseImage),
		Debug:      getBool("PAUL_ENVS_DEBUG", false),
	}
}

// Defaults returns the build parameters create starts from: the built-in
// defaults overridden by PAUL_ENVS_* variables, with the host identity.
func (c *Config) Defaults() envgen.Params {
	p := envgen.DefaultParams()

	p.UID = getInt("PAUL_ENVS_UID", hostID(os.Getuid()))
	p.GID = getInt("PAUL_ENVS_GID", hostID(os.Getgid()))
	p.Username = getEnv("PAUL_ENVS_USERNAME", p.Username)
	p.Shell = getEnv("PAUL_ENVS_SHELL", p.Shell)
	for _, lang := range envgen.Languages {
		key := "PAUL_ENVS_" + strings.ToUpper(envgen.FlagName(lang))
		p.SetVersion(lang, getEnv(key, p.Version(lang)))
	}
	p.Neovim = getBool("PAUL_ENVS_NEOVIM", p.Neovim)
	p.Starship = getBool("PAUL_ENVS_STARSHIP", p.Starship)
	p.Atuin = getBool("PAUL_ENVS_ATUIN", p.Atuin)
	p.Mise = getBool("PAUL_ENVS_MISE", p.Mise)
	p.Zellij = getBool("PAUL_ENVS_ZELLIJ", p.Zellij)
	p.Wasm = getBool("PAUL_ENVS_WASM", p.Wasm)
	p.Sudo = getBool("PAUL_ENVS_SUDO", p.Sudo)
	p.Packages = getEnv("PAUL_ENVS_PACKAGES", p.Packages)
	p.GitName = getEnv("PAUL_ENVS_GIT_NAME", p.GitName)
	p.GitEmail = getEnv("PAUL_ENVS_GIT_EMAIL", p.GitEmail)
	p.Memory = getEnv("PAUL_ENVS_MEMORY", p.Memory)
	p.BaseImage = c.BaseImage

	return p
}

// loadEnvFile loads path into the environment. A missing file is fine; a
// malformed one is reported and skipped.
func loadEnvFile(path string) {
	if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
		slog.Warn("Ignoring unreadable settings file", "file", path, "error", err)
	}
}

// hostID maps root and unknown ids (Windows returns -1) to the default
func hostID(id int) int {
	if id <= 0 {
		return envgen.DefaultUID
	}
	return id
}

func userConfigDir() string {
	return filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config"), "paul-envs")
}

func xdgDir(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), fallback)
	}
	return filepath.Join(home, fallback)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		slog.Warn("Ignoring invalid boolean setting", "key", key, "value", value)
		return defaultValue
	}
	return b
}

func getInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("Ignoring invalid integer setting", "key", key, "value", value)
		return defaultValue
	}
	return n
}
