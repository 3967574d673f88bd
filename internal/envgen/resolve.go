package envgen

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"unicode"

	"github.com/Masterminds/semver/v3"
	"github.com/c2h5oh/datasize"
	"github.com/distribution/reference"
	"github.com/docker/go-connections/nat"
	"github.com/samber/lo"
)

const (
	DefaultUID       = 1000
	DefaultGID       = 1000
	DefaultUsername  = "dev"
	DefaultBaseImage = "ubuntu:24.04"
)

var (
	usernamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_-]{0,31}$`)
	packagePattern  = regexp.MustCompile(`^[a-z0-9][a-z0-9+.-]*(=[A-Za-z0-9.+~:-]+)?$`)
	namePattern     = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)
	volumePattern   = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)
)

// DefaultParams returns the parameters used when the user sets nothing
func DefaultParams() Params {
	return Params{
		UID:       DefaultUID,
		GID:       DefaultGID,
		Username:  DefaultUsername,
		Shell:     string(ShellBash),
		Node:      VersionNone,
		Rust:      VersionNone,
		Python:    VersionNone,
		Go:        VersionNone,
		Mise:      true,
		BaseImage: DefaultBaseImage,
	}
}

// FlagName is the user-facing parameter name of a language
func FlagName(lang Language) string {
	if lang == LangNode {
		return "nodejs"
	}
	return string(lang)
}

// Resolve validates params and selects what the build installs.
// Soft problems are returned as warnings; the offending value is dropped.
func Resolve(name string, p Params) (*BuildConfig, []Warning, error) {
	var warnings []Warning

	if !namePattern.MatchString(name) {
		return nil, nil, fmt.Errorf("%w: environment name %q", ErrInvalidConfig, name)
	}

	cfg := &BuildConfig{
		Name:     name,
		UID:      p.UID,
		GID:      p.GID,
		GitName:  strings.TrimSpace(p.GitName),
		GitEmail: strings.TrimSpace(p.GitEmail),
		Tools: Tools{
			Neovim:   p.Neovim,
			Starship: p.Starship,
			Atuin:    p.Atuin,
			Mise:     p.Mise,
			Zellij:   p.Zellij,
		},
		Sudo: p.Sudo,
	}

	if hasControl(cfg.GitName) || hasControl(cfg.GitEmail) {
		return nil, nil, fmt.Errorf("%w: git identity contains control characters", ErrInvalidConfig)
	}

	// Identity
	if cfg.UID == 0 {
		cfg.UID = DefaultUID
	}
	if cfg.GID == 0 {
		cfg.GID = DefaultGID
	}
	if cfg.UID < 0 || cfg.GID < 0 {
		return nil, nil, fmt.Errorf("%w: uid/gid must be positive, got %d/%d", ErrInvalidConfig, p.UID, p.GID)
	}

	cfg.Username = strings.TrimSpace(p.Username)
	if cfg.Username == "" {
		cfg.Username = DefaultUsername
	}
	if !usernamePattern.MatchString(cfg.Username) || cfg.Username == "root" {
		return nil, nil, fmt.Errorf("%w: username %q", ErrInvalidConfig, cfg.Username)
	}
	cfg.Home = "/home/" + cfg.Username

	shell, err := parseShell(p.Shell)
	if err != nil {
		return nil, nil, err
	}
	cfg.Shell = shell

	// Toolchains
	for _, lang := range Languages {
		version := strings.ToLower(strings.TrimSpace(p.Version(lang)))
		if version == "" {
			version = VersionNone
		}
		if version == VersionNone {
			continue
		}
		if version != VersionLatest {
			if _, err := semver.NewVersion(version); err != nil {
				return nil, nil, fmt.Errorf("%w: %s version %q: %v", ErrInvalidConfig, FlagName(lang), version, err)
			}
		}

		tc := Toolchain{Lang: lang, Version: version, Source: FromMise}
		if !cfg.Tools.Mise {
			if version != VersionLatest {
				warnings = append(warnings, Warning{
					Field:   FlagName(lang),
					Message: fmt.Sprintf("version %q needs mise; installing the distribution default instead", version),
				})
			}
			tc.Version = VersionLatest
			tc.Source = FromDistro
		}
		cfg.Toolchains = append(cfg.Toolchains, tc)
	}

	// Wasm is only meaningful with a rust toolchain
	if _, ok := cfg.Toolchain(LangRust); ok {
		cfg.Wasm = p.Wasm
	}

	// Packages
	pkgs := lo.Uniq(strings.Fields(p.Packages))
	for _, pkg := range pkgs {
		if !packagePattern.MatchString(pkg) {
			return nil, nil, fmt.Errorf("%w: package %q", ErrInvalidConfig, pkg)
		}
	}
	cfg.Packages = pkgs

	// Base image
	cfg.BaseImage, err = normalizeImage(p.BaseImage)
	if err != nil {
		return nil, nil, err
	}

	// Runtime
	cfg.Ports, err = normalizePorts(p.Ports)
	if err != nil {
		return nil, nil, err
	}
	for _, v := range p.Volumes {
		vm, err := ParseVolume(v)
		if err != nil {
			return nil, nil, err
		}
		cfg.Volumes = append(cfg.Volumes, vm)
	}
	if s := strings.TrimSpace(p.Memory); s != "" {
		var size datasize.ByteSize
		if err := size.UnmarshalText([]byte(s)); err != nil {
			return nil, nil, fmt.Errorf("%w: memory %q: %v", ErrInvalidConfig, s, err)
		}
		cfg.Memory = int64(size.Bytes())
	}

	return cfg, warnings, nil
}

func parseShell(s string) (Shell, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ShellBash, nil
	}
	for _, sh := range Shells {
		if string(sh) == s {
			return sh, nil
		}
	}
	return "", fmt.Errorf("%w: shell %q must be one of bash, zsh, fish", ErrInvalidConfig, s)
}

func normalizeImage(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		s = DefaultBaseImage
	}
	named, err := reference.ParseNormalizedNamed(s)
	if err != nil {
		return "", fmt.Errorf("%w: base image %q: %v", ErrInvalidConfig, s, err)
	}
	if _, ok := named.(reference.Digested); ok {
		return reference.FamiliarString(named), nil
	}
	return reference.FamiliarString(reference.TagNameOnly(named)), nil
}

// normalizePorts publishes a bare port on the same host port
func normalizePorts(ports []string) ([]string, error) {
	out := make([]string, 0, len(ports))
	for _, p := range ports {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.Contains(p, ":") {
			p = p + ":" + p
		}
		if _, _, err := nat.ParsePortSpecs([]string{p}); err != nil {
			return nil, fmt.Errorf("%w: port %q: %v", ErrInvalidConfig, p, err)
		}
		out = append(out, p)
	}
	return lo.Uniq(out), nil
}

// ParseVolume parses "source:destination[:ro|rw]". The source is an absolute
// host path or a named volume.
func ParseVolume(s string) (VolumeMapping, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
		return VolumeMapping{}, fmt.Errorf("%w: volume %q must be source:destination[:ro]", ErrInvalidConfig, s)
	}
	vm := VolumeMapping{Source: parts[0], Destination: parts[1]}
	// the daemon rejects relative bind sources
	if !path.IsAbs(vm.Source) && !volumePattern.MatchString(vm.Source) {
		return VolumeMapping{}, fmt.Errorf("%w: volume %q source must be an absolute path or a volume name", ErrInvalidConfig, s)
	}
	if !path.IsAbs(vm.Destination) {
		return VolumeMapping{}, fmt.Errorf("%w: volume %q destination must be absolute", ErrInvalidConfig, s)
	}
	if len(parts) == 3 {
		switch parts[2] {
		case "ro":
			vm.ReadOnly = true
		case "rw":
		default:
			return VolumeMapping{}, fmt.Errorf("%w: volume %q mode must be ro or rw", ErrInvalidConfig, s)
		}
	}
	return vm, nil
}

func hasControl(s string) bool {
	return strings.IndexFunc(s, unicode.IsControl) >= 0
}
