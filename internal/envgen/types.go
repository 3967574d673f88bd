package envgen

import "strings"

// Shell is the login shell of the container account
type Shell string

const (
	ShellBash Shell = "bash"
	ShellZsh  Shell = "zsh"
	ShellFish Shell = "fish"
)

// Shells lists the supported shells in display order
var Shells = []Shell{ShellBash, ShellZsh, ShellFish}

// Language identifies a toolchain that can be installed in the image
type Language string

const (
	LangNode   Language = "node"
	LangRust   Language = "rust"
	LangPython Language = "python"
	LangGo     Language = "go"
)

// Languages lists toolchains in install order
var Languages = []Language{LangNode, LangRust, LangPython, LangGo}

// Special version values accepted for every toolchain
const (
	VersionNone   = "none"
	VersionLatest = "latest"
)

// Params holds the build parameters of an environment as the user gave them.
// It is persisted as-is; Resolve turns it into a BuildConfig.
type Params struct {
	// Identity
	UID      int    `yaml:"uid"`
	GID      int    `yaml:"gid"`
	Username string `yaml:"username"`
	Shell    string `yaml:"shell"`

	// Toolchains: "none", "latest" or a version
	Node   string `yaml:"nodejs"`
	Rust   string `yaml:"rust"`
	Python string `yaml:"python"`
	Go     string `yaml:"go"`

	// Tools
	Neovim   bool `yaml:"neovim"`
	Starship bool `yaml:"starship"`
	Atuin    bool `yaml:"atuin"`
	Mise     bool `yaml:"mise"`
	Zellij   bool `yaml:"zellij"`

	// Extras
	Packages string `yaml:"packages,omitempty"` // space separated
	Wasm     bool   `yaml:"wasm"`
	Sudo     bool   `yaml:"sudo"`

	// Git identity
	GitName  string `yaml:"git_name,omitempty"`
	GitEmail string `yaml:"git_email,omitempty"`

	// Runtime
	BaseImage string   `yaml:"base_image,omitempty"`
	Ports     []string `yaml:"ports,omitempty"`
	Volumes   []string `yaml:"volumes,omitempty"`
	Memory    string   `yaml:"memory,omitempty"`
}

// Version returns the requested version for a language
func (p *Params) Version(lang Language) string {
	switch lang {
	case LangNode:
		return p.Node
	case LangRust:
		return p.Rust
	case LangPython:
		return p.Python
	case LangGo:
		return p.Go
	}
	return ""
}

// SetVersion sets the requested version for a language
func (p *Params) SetVersion(lang Language, version string) {
	switch lang {
	case LangNode:
		p.Node = version
	case LangRust:
		p.Rust = version
	case LangPython:
		p.Python = version
	case LangGo:
		p.Go = version
	}
}

// InstallSource tells which installer provides a toolchain
type InstallSource int

const (
	// FromDistro installs the distribution default with the OS package manager
	FromDistro InstallSource = iota
	// FromMise installs the requested version with the mise version manager
	FromMise
)

// Toolchain is a language selected for installation
type Toolchain struct {
	Lang    Language
	Version string // "latest" or a version; always "latest" for FromDistro
	Source  InstallSource
}

// Tools holds the optional utility switches
type Tools struct {
	Neovim   bool
	Starship bool
	Atuin    bool
	Mise     bool
	Zellij   bool
}

// BuildConfig is the resolved configuration consumed by the step pipeline
type BuildConfig struct {
	Name string // environment name

	UID      int
	GID      int
	Username string
	Home     string
	Shell    Shell

	Toolchains []Toolchain
	Tools      Tools
	Packages   []string
	Wasm       bool
	Sudo       bool

	GitName  string
	GitEmail string

	BaseImage string
	Ports     []string
	Volumes   []VolumeMapping
	Memory    int64 // bytes, 0 = unlimited
}

// Toolchain returns the toolchain selected for lang, if any
func (c *BuildConfig) Toolchain(lang Language) (Toolchain, bool) {
	for _, tc := range c.Toolchains {
		if tc.Lang == lang {
			return tc, true
		}
	}
	return Toolchain{}, false
}

// Workspace is the directory the project is mounted at
func (c *BuildConfig) Workspace() string {
	return c.Home + "/projects/" + c.Name
}

// CacheDir is the persisted cache directory (reproducible content)
func (c *BuildConfig) CacheDir() string {
	return c.Home + "/.container-cache"
}

// LocalDir is the persisted local directory (stateful user data)
func (c *BuildConfig) LocalDir() string {
	return c.Home + "/.container-local"
}

// VolumeMapping represents a user volume mount
type VolumeMapping struct {
	Source      string
	Destination string
	ReadOnly    bool
}

// Named reports whether Source is a Docker volume name rather than a host path
func (v VolumeMapping) Named() bool {
	return !strings.HasPrefix(v.Source, "/")
}

// Warning is a non-fatal resolution problem
type Warning struct {
	Field   string
	Message string
}

func (w Warning) String() string {
	return w.Field + ": " + w.Message
}
