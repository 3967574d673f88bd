package envgen

import (
	"strings"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stepNames(steps []Step) []string {
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Name
	}
	return names
}

func findStep(steps []Step, name string) (Step, bool) {
	for _, s := range steps {
		if s.Name == name {
			return s, true
		}
	}
	return Step{}, false
}

func TestSteps_Minimal(t *testing.T) {
	cfg := testConfig(t, Params{})

	steps := Steps(cfg)
	assert.Equal(t, []string{"system packages", "user account", "home seed and configs"}, stepNames(steps))
	require.NoError(t, ValidateSteps(steps))
}

func TestSteps_LayerOrder(t *testing.T) {
	cfg := testConfig(t, Params{
		Mise: true, Node: "22", Rust: "latest", Wasm: true,
		Neovim: true, Starship: true, Atuin: true, Zellij: true, Sudo: true,
		Packages: "ripgrep", GitName: "Jane Doe", GitEmail: "jane@example.com",
	})

	order := map[Layer]int{LayerBase: 0, LayerUser: 1, LayerTools: 2, LayerWorkspace: 3}
	steps := Steps(cfg)
	for i := 1; i < len(steps); i++ {
		assert.LessOrEqual(t, order[steps[i-1].Layer], order[steps[i].Layer], "%s before %s", steps[i-1].Name, steps[i].Name)
	}
	require.NoError(t, ValidateSteps(steps))

	names := stepNames(steps)
	assert.Contains(t, names, "supplementary packages")
	assert.Contains(t, names, "sudo access")
	assert.Contains(t, names, "mise node")
	assert.Contains(t, names, "rust wasm target")
}

// The git identity is configured after the configs are copied in.
func TestSteps_GitIdentityLast(t *testing.T) {
	cfg := testConfig(t, Params{Neovim: true, GitName: "Jane O'Doe", GitEmail: "jane@example.com"})

	steps := Steps(cfg)
	last := steps[len(steps)-1]
	assert.Equal(t, "git identity", last.Name)
	assert.True(t, last.AsUser)
	assert.Contains(t, last.Script(), "jane@example.com")
	require.NoError(t, ValidateSteps(steps))

	copyIdx := -1
	for i, s := range steps {
		if s.Copy != nil {
			copyIdx = i
		}
	}
	assert.Less(t, copyIdx, len(steps)-1)
}

func TestSteps_NoGitIdentity(t *testing.T) {
	_, ok := findStep(Steps(testConfig(t, Params{})), "git identity")
	assert.False(t, ok)
}

func TestSteps_NeovimSyncIsBestEffort(t *testing.T) {
	steps := Steps(testConfig(t, Params{Neovim: true}))

	sync, ok := findStep(steps, "neovim plugin sync")
	require.True(t, ok)
	assert.True(t, sync.BestEffort)
	assert.True(t, strings.HasSuffix(sync.Script(), "|| true"))

	base, _ := findStep(steps, "system packages")
	assert.Contains(t, base.Script(), "neovim")
}

func TestSteps_DistroToolchainsWithoutMise(t *testing.T) {
	cfg := testConfig(t, Params{Mise: false, Node: "22", Go: "latest"})

	steps := Steps(cfg)
	base, ok := findStep(steps, "system packages")
	require.True(t, ok)
	assert.Contains(t, base.Script(), "nodejs npm")
	assert.Contains(t, base.Script(), "golang-go")

	for _, s := range steps {
		assert.NotContains(t, s.Script(), "mise")
	}
}

func TestSteps_MiseToolchains(t *testing.T) {
	cfg := testConfig(t, Params{Mise: true, Python: "3.12", Rust: "1.83.0"})

	steps := Steps(cfg)
	py, ok := findStep(steps, "mise python")
	require.True(t, ok)
	assert.Contains(t, py.Script(), "python@3.12")
	assert.True(t, py.AsUser)

	base, _ := findStep(steps, "system packages")
	assert.Contains(t, base.Script(), "build-essential")
	assert.NotContains(t, base.Script(), "python3-pip")
}

// Wasm without rust changes nothing.
func TestSteps_WasmWithoutRust(t *testing.T) {
	with := Steps(testConfig(t, Params{Mise: true, Wasm: true, Node: "22"}))
	without := Steps(testConfig(t, Params{Mise: true, Node: "22"}))
	assert.Equal(t, without, with)
}

func TestSteps_WasmDistroRust(t *testing.T) {
	steps := Steps(testConfig(t, Params{Mise: false, Rust: "latest", Wasm: true}))
	base, _ := findStep(steps, "system packages")
	assert.Contains(t, base.Script(), "libstd-rust-dev-wasm32")
}

func TestSteps_UserAccount(t *testing.T) {
	steps := Steps(testConfig(t, Params{Username: "paul", Shell: "fish"}))
	user, ok := findStep(steps, "user account")
	require.True(t, ok)
	script := user.Script()
	assert.Contains(t, script, "--shell /usr/bin/fish paul")
	assert.Contains(t, script, "/home/paul/.container-cache")
	assert.Contains(t, script, "/home/paul/projects/demo")
}

// Every combination of switches yields scripts that parse.
func TestSteps_AlwaysValid(t *testing.T) {
	check := func(neovim, starship, atuin, mise, zellij, wasm, sudo bool, shellIdx, langs uint8) bool {
		p := Params{
			Shell:    string(Shells[int(shellIdx)%len(Shells)]),
			Neovim:   neovim,
			Starship: starship,
			Atuin:    atuin,
			Mise:     mise,
			Zellij:   zellij,
			Wasm:     wasm,
			Sudo:     sudo,
			GitName:  "A \"quoted\" $name",
		}
		for i, lang := range Languages {
			if langs&(1<<i) != 0 {
				p.SetVersion(lang, "1.2")
			}
		}
		cfg, _, err := Resolve("prop", p)
		if err != nil {
			return false
		}
		return ValidateSteps(Steps(cfg)) == nil
	}
	assert.NoError(t, quick.Check(check, nil))
}

func TestValidateSteps_RejectsBrokenScript(t *testing.T) {
	err := ValidateSteps([]Step{{Name: "broken", Commands: []string{"echo 'unterminated"}}})
	assert.ErrorIs(t, err, ErrInvalidScript)
}

func TestEnvironment(t *testing.T) {
	cfg := testConfig(t, Params{Mise: true, Go: "1.23", Atuin: true})

	env := map[string]string{}
	for _, v := range Environment(cfg) {
		env[v.Name] = v.Value
	}
	assert.Equal(t, "/home/dev/.container-cache", env["XDG_CACHE_HOME"])
	assert.Equal(t, "/home/dev/.container-local/share/atuin/history.db", env["ATUIN_DB_PATH"])
	assert.Equal(t, "/home/dev/.container-cache/go/mod", env["GOMODCACHE"])
	assert.True(t, strings.HasSuffix(env["PATH"], ":$PATH"))
	assert.Contains(t, env["PATH"], "/home/dev/.local/share/mise/shims")
	assert.NotContains(t, env, "STARSHIP_CACHE")
}

func TestSteps_AtuinBashPreexec(t *testing.T) {
	bash, ok := findStep(Steps(testConfig(t, Params{Shell: "bash", Atuin: true})), "atuin")
	require.True(t, ok)
	require.Len(t, bash.Commands, 2)
	assert.Contains(t, bash.Commands[1], "bash-preexec.sh")
	assert.Contains(t, bash.Commands[1], bashPreexecFile)

	fish, ok := findStep(Steps(testConfig(t, Params{Shell: "fish", Atuin: true})), "atuin")
	require.True(t, ok)
	assert.Len(t, fish.Commands, 1)
}
