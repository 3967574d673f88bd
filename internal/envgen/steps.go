package envgen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"mvdan.cc/sh/v3/syntax"
)

// Layer groups steps in build order
type Layer string

const (
	LayerBase      Layer = "base"
	LayerUser      Layer = "user"
	LayerTools     Layer = "tools"
	LayerWorkspace Layer = "workspace"
)

// stagedHome is the directory of the build context holding the home seed
const stagedHome = "home"

// basePackages are installed in every image
var basePackages = []string{"ca-certificates", "curl", "git", "less", "locales", "unzip", "xz-utils"}

// distroPackages install a toolchain's distribution default
var distroPackages = map[Language][]string{
	LangNode:   {"nodejs", "npm"},
	LangRust:   {"rustc", "cargo"},
	LangPython: {"python3", "python3-pip", "python3-venv"},
	LangGo:     {"golang-go"},
}

// wasmTarget is the rust compilation target added by the wasm switch
const wasmTarget = "wasm32-unknown-unknown"

// Copy describes a COPY instruction
type Copy struct {
	Source      string
	Destination string
}

// Step is one installation action of the image build
type Step struct {
	Name       string
	Layer      Layer
	AsUser     bool     // run as the account instead of root
	Commands   []string // joined with &&
	Copy       *Copy    // COPY instead of RUN
	BestEffort bool     // failures do not abort the build
}

// Script returns the shell script of a RUN step
func (s Step) Script() string {
	script := strings.Join(s.Commands, " && \\\n    ")
	if s.BestEffort {
		return "(" + script + ") || true"
	}
	return script
}

// Steps returns the ordered installation pipeline for cfg.
// Disabled capabilities contribute no step.
func Steps(cfg *BuildConfig) []Step {
	var steps []Step
	steps = append(steps, baseSteps(cfg)...)
	steps = append(steps, userSteps(cfg)...)
	steps = append(steps, toolSteps(cfg)...)
	steps = append(steps, workspaceSteps(cfg)...)
	return steps
}

func baseSteps(cfg *BuildConfig) []Step {
	pkgs := append([]string{}, basePackages...)
	switch cfg.Shell {
	case ShellZsh:
		pkgs = append(pkgs, "zsh")
	case ShellFish:
		pkgs = append(pkgs, "fish")
	}
	if cfg.Tools.Neovim {
		pkgs = append(pkgs, "neovim")
	}
	if cfg.Sudo {
		pkgs = append(pkgs, "sudo")
	}
	for _, tc := range cfg.Toolchains {
		if tc.Source == FromDistro {
			pkgs = append(pkgs, distroPackages[tc.Lang]...)
		}
	}
	if tc, ok := cfg.Toolchain(LangRust); ok && tc.Source == FromDistro && cfg.Wasm {
		pkgs = append(pkgs, "libstd-rust-dev-wasm32")
	}
	if tc, ok := cfg.Toolchain(LangRust); ok && tc.Source == FromMise {
		// rustup needs a linker
		pkgs = append(pkgs, "build-essential")
	}

	steps := []Step{{
		Name:  "system packages",
		Layer: LayerBase,
		Commands: []string{
			"apt-get update",
			"apt-get install -y --no-install-recommends " + strings.Join(lo.Uniq(pkgs), " "),
			"rm -rf /var/lib/apt/lists/*",
		},
	}}

	if len(cfg.Packages) > 0 {
		steps = append(steps, Step{
			Name:  "supplementary packages",
			Layer: LayerBase,
			Commands: []string{
				"apt-get update",
				"apt-get install -y --no-install-recommends " + strings.Join(quoteAll(cfg.Packages), " "),
				"rm -rf /var/lib/apt/lists/*",
			},
		})
	}
	return steps
}

func userSteps(cfg *BuildConfig) []Step {
	user := quote(cfg.Username)
	home := quote(cfg.Home)
	steps := []Step{{
		Name:  "user account",
		Layer: LayerUser,
		Commands: []string{
			// base images may ship an account holding the requested uid
			`if existing="$(getent passwd "$USER_UID" | cut -d: -f1)" && [ -n "$existing" ]; then userdel -r "$existing"; fi`,
			`if ! getent group "$USER_GID" >/dev/null; then groupadd --gid "$USER_GID" ` + user + `; fi`,
			`useradd --uid "$USER_UID" --gid "$USER_GID" --create-home --home-dir ` + home + ` --shell ` + LoginPath(cfg.Shell) + ` ` + user,
			"mkdir -p " + strings.Join(quoteAll([]string{
				cfg.CacheDir(),
				cfg.LocalDir() + "/state",
				cfg.LocalDir() + "/share",
				cfg.Home + "/.local/bin",
				cfg.Workspace(),
			}), " "),
			`chown -R "$USER_UID:$USER_GID" ` + home,
		},
	}}

	if cfg.Sudo {
		sudoers := quote("/etc/sudoers.d/" + cfg.Username)
		steps = append(steps, Step{
			Name:  "sudo access",
			Layer: LayerUser,
			Commands: []string{
				"echo " + quote(cfg.Username+" ALL=(ALL) NOPASSWD:ALL") + " > " + sudoers,
				"chmod 0440 " + sudoers,
			},
		})
	}
	return steps
}

func toolSteps(cfg *BuildConfig) []Step {
	var steps []Step
	add := func(name string, commands ...string) {
		steps = append(steps, Step{Name: name, Layer: LayerTools, AsUser: true, Commands: commands})
	}

	if cfg.Tools.Starship {
		add("starship", `curl -fsSL https://starship.rs/install.sh | sh -s -- --yes --bin-dir "$HOME/.local/bin"`)
	}
	if cfg.Tools.Atuin {
		commands := []string{"curl --proto '=https' --tlsv1.2 -LsSf https://setup.atuin.sh | sh"}
		if cfg.Shell == ShellBash {
			// the installer's .bashrc edits are replaced by the seeded startup file
			commands = append(commands, `curl -fsSL https://raw.githubusercontent.com/rcaloras/bash-preexec/master/bash-preexec.sh -o "$HOME/`+bashPreexecFile+`"`)
		}
		add("atuin", commands...)
	}
	if cfg.Tools.Zellij {
		add("zellij", `curl -fsSL "https://github.com/zellij-org/zellij/releases/latest/download/zellij-$(uname -m)-unknown-linux-musl.tar.gz" | tar -xz -C "$HOME/.local/bin"`)
	}
	if cfg.Tools.Mise {
		add("mise", `curl -fsSL https://mise.run | MISE_INSTALL_PATH="$HOME/.local/bin/mise" sh`)

		for _, tc := range cfg.Toolchains {
			if tc.Source != FromMise {
				continue
			}
			add("mise "+string(tc.Lang), `"$HOME/.local/bin/mise" use --global `+quote(string(tc.Lang)+"@"+tc.Version))
		}
		if tc, ok := cfg.Toolchain(LangRust); ok && tc.Source == FromMise && cfg.Wasm {
			add("rust wasm target", `"$HOME/.local/bin/mise" exec rust -- rustup target add `+wasmTarget)
		}
	}
	return steps
}

func workspaceSteps(cfg *BuildConfig) []Step {
	steps := []Step{{
		Name:  "home seed and configs",
		Layer: LayerWorkspace,
		Copy:  &Copy{Source: stagedHome + "/", Destination: cfg.Home + "/"},
	}}

	if cfg.Tools.Neovim {
		steps = append(steps, Step{
			Name:       "neovim plugin sync",
			Layer:      LayerWorkspace,
			AsUser:     true,
			Commands:   []string{`nvim --headless "+Lazy! sync" +qa`},
			BestEffort: true,
		})
	}

	// git identity comes last so copied configs cannot override it
	var git []string
	if cfg.GitName != "" {
		git = append(git, "git config --global user.name "+quote(cfg.GitName))
	}
	if cfg.GitEmail != "" {
		git = append(git, "git config --global user.email "+quote(cfg.GitEmail))
	}
	if len(git) > 0 {
		steps = append(steps, Step{Name: "git identity", Layer: LayerWorkspace, AsUser: true, Commands: git})
	}
	return steps
}

// ValidateSteps checks that every RUN step parses as bash
func ValidateSteps(steps []Step) error {
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash))
	for _, s := range steps {
		if s.Copy != nil {
			continue
		}
		if _, err := parser.Parse(strings.NewReader(s.Script()), s.Name); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidScript, s.Name, err)
		}
	}
	return nil
}

// quote shell-quotes a value for interpolation into a step script
func quote(s string) string {
	q, err := syntax.Quote(s, syntax.LangBash)
	if err != nil {
		// only strings with NUL bytes are rejected; they never pass Resolve
		return strconv.Quote(s)
	}
	return q
}

func quoteAll(ss []string) []string {
	return lo.Map(ss, func(s string, _ int) string { return quote(s) })
}
