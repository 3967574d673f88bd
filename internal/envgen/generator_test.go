package envgen

import (
	"archive/tar"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestTemplateEngine(t *testing.T) {
	engine, err := NewTemplateEngine()
	require.NoError(t, err)
	assert.Equal(t, []string{"Dockerfile.tmpl"}, engine.ListTemplates())

	_, err = engine.Render("missing.tmpl", nil)
	assert.Error(t, err)
}

func TestGenerator_Render(t *testing.T) {
	gen, err := NewGenerator()
	require.NoError(t, err)

	cfg := testConfig(t, Params{
		UID: 1001, GID: 1002, Shell: "zsh", Mise: true, Node: "22",
		Neovim: true, GitName: "Jane Doe",
	})
	out, err := gen.Render(cfg)
	require.NoError(t, err)
	dockerfile := string(out)

	assert.True(t, strings.HasPrefix(dockerfile, "# syntax=docker/dockerfile:1\n"))
	assert.Contains(t, dockerfile, "FROM ubuntu:24.04\n")
	assert.Contains(t, dockerfile, "ARG USER_UID=1001\n")
	assert.Contains(t, dockerfile, "ARG USER_GID=1002\n")
	assert.Contains(t, dockerfile, `ENV XDG_CACHE_HOME="/home/dev/.container-cache"`)
	assert.Contains(t, dockerfile, "COPY --chown=${USER_UID}:${USER_GID} home/ /home/dev/\n")
	assert.Contains(t, dockerfile, "WORKDIR /home/dev/projects/demo\n")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(dockerfile), `CMD ["/usr/bin/zsh", "-l"]`))

	// user switches only where the running user changes
	assert.Equal(t, 1, strings.Count(dockerfile, "USER root\n"))
	assert.Equal(t, 3, strings.Count(dockerfile, "USER dev\n"))

	// steps appear in pipeline order
	idx := func(s string) int { return strings.Index(dockerfile, s) }
	assert.Less(t, idx("# [base] system packages"), idx("# [user] user account"))
	assert.Less(t, idx("# [user] user account"), idx("# [tools] mise"))
	assert.Less(t, idx("# [workspace] home seed and configs"), idx("# [workspace] git identity"))
}

func TestNewTemplateData_SwitchUser(t *testing.T) {
	cfg := testConfig(t, Params{Starship: true})
	data := NewTemplateData(cfg, Steps(cfg))

	var switches []string
	for _, s := range data.Steps {
		if s.SwitchUser {
			switches = append(switches, s.Name+"->"+s.User)
		}
	}
	assert.Equal(t, []string{"starship->dev", "home seed and configs->root"}, switches)
}

func TestGenerator_Generate(t *testing.T) {
	gen, err := NewGenerator()
	require.NoError(t, err)

	cfg := testConfig(t, Params{Starship: true, Mise: true})
	contextDir := filepath.Join(t.TempDir(), "ctx")
	require.NoError(t, gen.Generate(cfg, filepath.Join(t.TempDir(), "absent"), contextDir))

	assert.FileExists(t, filepath.Join(contextDir, DockerfileName))
	rc := readFile(t, filepath.Join(contextDir, "home", ".bashrc"))
	assert.Equal(t, StartupContent(cfg), rc)
	assert.Contains(t, readFile(t, filepath.Join(contextDir, "home", ".config", "paul-envs", "history.bash")), "HISTFILE")
}

func TestGenerator_GenerateReplacesContext(t *testing.T) {
	gen, err := NewGenerator()
	require.NoError(t, err)

	contextDir := t.TempDir()
	writeFile(t, filepath.Join(contextDir, "stale"), "old")

	require.NoError(t, gen.Generate(testConfig(t, Params{}), "", contextDir))
	assert.NoFileExists(t, filepath.Join(contextDir, "stale"))
}

// A user startup file copied from configs replaces the seed but keeps the
// history override line.
func TestGenerator_ConfigsOverlay(t *testing.T) {
	gen, err := NewGenerator()
	require.NoError(t, err)

	configs := t.TempDir()
	writeFile(t, filepath.Join(configs, ".zshrc"), "alias gs='git status'\n")
	writeFile(t, filepath.Join(configs, ".config", "nvim", "init.lua"), "vim.o.number = true\n")
	require.NoError(t, os.Symlink(".config/nvim", filepath.Join(configs, ".vim")))

	cfg := testConfig(t, Params{Shell: "zsh", Atuin: true})
	contextDir := filepath.Join(t.TempDir(), "ctx")
	require.NoError(t, gen.Generate(cfg, configs, contextDir))

	home := filepath.Join(contextDir, "home")
	rc := readFile(t, filepath.Join(home, ".zshrc"))
	assert.Equal(t, HistoryOverrideLine(ShellZsh)+"\nalias gs='git status'\n", rc)
	assert.NotContains(t, rc, "atuin init")

	assert.Equal(t, "vim.o.number = true\n", readFile(t, filepath.Join(home, ".config", "nvim", "init.lua")))
	link, err := os.Readlink(filepath.Join(home, ".vim"))
	require.NoError(t, err)
	assert.Equal(t, ".config/nvim", link)
}

func TestGenerator_ConfigsKeepOverrideLine(t *testing.T) {
	gen, err := NewGenerator()
	require.NoError(t, err)

	configs := t.TempDir()
	content := "export EDITOR=nvim\n" + HistoryOverrideLine(ShellBash) + "\n"
	writeFile(t, filepath.Join(configs, ".bashrc"), content)

	contextDir := filepath.Join(t.TempDir(), "ctx")
	require.NoError(t, gen.Generate(testConfig(t, Params{}), configs, contextDir))
	assert.Equal(t, content, readFile(t, filepath.Join(contextDir, "home", ".bashrc")))
}

// A configs symlink named like a generated directory is merged into it, so
// the history override file survives.
func TestGenerator_ConfigsSymlinkDir(t *testing.T) {
	gen, err := NewGenerator()
	require.NoError(t, err)

	configs := t.TempDir()
	writeFile(t, filepath.Join(configs, "dotconfig", "starship.toml"), "add_newline = false\n")
	require.NoError(t, os.Symlink("dotconfig", filepath.Join(configs, ".config")))

	cfg := testConfig(t, Params{})
	contextDir := filepath.Join(t.TempDir(), "ctx")
	require.NoError(t, gen.Generate(cfg, configs, contextDir))

	home := filepath.Join(contextDir, "home")
	info, err := os.Lstat(filepath.Join(home, ".config"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, "add_newline = false\n", readFile(t, filepath.Join(home, ".config", "starship.toml")))
	assert.Equal(t, "add_newline = false\n", readFile(t, filepath.Join(home, "dotconfig", "starship.toml")))
	assert.Equal(t, HistoryOverride(ShellBash), readFile(t, filepath.Join(home, filepath.FromSlash(HistoryOverrideFile(ShellBash)))))
	assert.Equal(t, StartupContent(cfg), readFile(t, filepath.Join(home, ".bashrc")))
}

func TestGenerator_ConfigsReplaceGeneratedDir(t *testing.T) {
	gen, err := NewGenerator()
	require.NoError(t, err)

	tests := []struct {
		name  string
		setup func(t *testing.T, configs string)
	}{
		{"file", func(t *testing.T, configs string) {
			writeFile(t, filepath.Join(configs, ".config"), "not a directory\n")
		}},
		{"link to file", func(t *testing.T, configs string) {
			writeFile(t, filepath.Join(configs, "settings"), "")
			require.NoError(t, os.Symlink("settings", filepath.Join(configs, ".config")))
		}},
		{"dangling link", func(t *testing.T, configs string) {
			require.NoError(t, os.Symlink("missing", filepath.Join(configs, ".config")))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configs := t.TempDir()
			tt.setup(t, configs)

			err := gen.Generate(testConfig(t, Params{}), configs, filepath.Join(t.TempDir(), "ctx"))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestGenerator_ConfigsNotADirectory(t *testing.T) {
	gen, err := NewGenerator()
	require.NoError(t, err)

	file := filepath.Join(t.TempDir(), "configs")
	writeFile(t, file, "")

	err = gen.Generate(testConfig(t, Params{}), file, filepath.Join(t.TempDir(), "ctx"))
	assert.Error(t, err)
}

func TestTarball(t *testing.T) {
	gen, err := NewGenerator()
	require.NoError(t, err)

	contextDir := filepath.Join(t.TempDir(), "ctx")
	require.NoError(t, gen.Generate(testConfig(t, Params{}), "", contextDir))

	var buf bytes.Buffer
	require.NoError(t, Tarball(contextDir, &buf))

	entries := map[string]*tar.Header{}
	tr := tar.NewReader(&buf)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		entries[hdr.Name] = hdr
	}

	require.Contains(t, entries, DockerfileName)
	require.Contains(t, entries, "home/")
	require.Contains(t, entries, "home/.bashrc")
	assert.Equal(t, 0, entries["home/.bashrc"].Uid)
	assert.Equal(t, byte(tar.TypeDir), entries["home/"].Typeflag)
}
