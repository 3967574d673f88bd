package envgen

import (
	"strings"
)

// historyDir holds the history override files inside the account's home
const historyDir = ".config/paul-envs"

// bashPreexecFile is where the atuin step installs bash-preexec, relative to home
const bashPreexecFile = ".bash-preexec.sh"

// StartupFile returns the path of the shell's startup file, relative to home
func StartupFile(shell Shell) string {
	switch shell {
	case ShellZsh:
		return ".zshrc"
	case ShellFish:
		return ".config/fish/config.fish"
	default:
		return ".bashrc"
	}
}

// LoginPath returns the absolute path of the shell binary
func LoginPath(shell Shell) string {
	switch shell {
	case ShellZsh:
		return "/usr/bin/zsh"
	case ShellFish:
		return "/usr/bin/fish"
	default:
		return "/bin/bash"
	}
}

// HistoryOverrideFile returns the history override file, relative to home
func HistoryOverrideFile(shell Shell) string {
	return historyDir + "/history." + string(shell)
}

// HistoryOverrideLine is the startup file line sourcing the history override
func HistoryOverrideLine(shell Shell) string {
	file := "$HOME/" + HistoryOverrideFile(shell)
	if shell == ShellFish {
		return "test -f " + file + "; and source " + file
	}
	return `[ -f "` + file + `" ] && . "` + file + `"`
}

// HistoryOverride returns the content of the history override file. It moves
// shell history into the persisted state directory.
func HistoryOverride(shell Shell) string {
	switch shell {
	case ShellZsh:
		return `mkdir -p "${XDG_STATE_HOME:-$HOME/.local/state}/zsh"
HISTFILE="${XDG_STATE_HOME:-$HOME/.local/state}/zsh/history"
HISTSIZE=100000
SAVEHIST=100000
setopt APPEND_HISTORY SHARE_HISTORY HIST_IGNORE_DUPS
`
	case ShellFish:
		return `# fish keeps its history in $XDG_DATA_HOME/fish
mkdir -p $XDG_DATA_HOME/fish
`
	default:
		return `mkdir -p "${XDG_STATE_HOME:-$HOME/.local/state}/bash"
export HISTFILE="${XDG_STATE_HOME:-$HOME/.local/state}/bash/history"
export HISTSIZE=100000
export HISTFILESIZE=100000
shopt -s histappend
`
	}
}

// Snippet is one initialization line of the startup file
type Snippet struct {
	Tool string
	Line string
}

// Snippets returns the startup file initialization lines for cfg, one per
// enabled tool, in the order history override, starship, atuin, mise.
func Snippets(cfg *BuildConfig) []Snippet {
	sh := cfg.Shell
	snippets := []Snippet{{Tool: "history", Line: HistoryOverrideLine(sh)}}

	if cfg.Tools.Starship {
		snippets = append(snippets, Snippet{Tool: "starship", Line: initLine(sh, "starship init "+string(sh))})
	}
	if cfg.Tools.Atuin {
		line := initLine(sh, "atuin init "+string(sh))
		if sh == ShellBash {
			// atuin hooks bash through bash-preexec, which has to load first
			line = `[ -f "$HOME/` + bashPreexecFile + `" ] && source "$HOME/` + bashPreexecFile + `"; ` + line
		}
		snippets = append(snippets, Snippet{Tool: "atuin", Line: line})
	}
	if cfg.Tools.Mise {
		snippets = append(snippets, Snippet{Tool: "mise", Line: initLine(sh, "$HOME/.local/bin/mise activate "+string(sh))})
	}
	return snippets
}

func initLine(shell Shell, cmd string) string {
	if shell == ShellFish {
		return cmd + " | source"
	}
	return `eval "$(` + cmd + `)"`
}

// StartupContent renders the seeded startup file
func StartupContent(cfg *BuildConfig) string {
	var b strings.Builder
	b.WriteString("# Generated by paul-envs. Files in configs/ may replace it.\n")
	for _, s := range Snippets(cfg) {
		b.WriteString(s.Line)
		b.WriteByte('\n')
	}
	return b.String()
}

// EnsureHistoryOverride re-adds the history override line when content lost
// it. The line is put first so it runs before any other initialization.
func EnsureHistoryOverride(content string, shell Shell) (string, bool) {
	line := HistoryOverrideLine(shell)
	for _, l := range strings.Split(content, "\n") {
		if strings.TrimSpace(l) == line {
			return content, false
		}
	}
	return line + "\n" + content, true
}
