package envgen

// EnvVar is an environment variable exported into the container
type EnvVar struct {
	Name  string
	Value string
}

// Environment returns the variables exported into the container: the
// persisted cache/state/data locations and per-toolchain paths.
func Environment(cfg *BuildConfig) []EnvVar {
	cache := cfg.CacheDir()
	local := cfg.LocalDir()

	env := []EnvVar{
		{"XDG_CACHE_HOME", cache},
		{"XDG_STATE_HOME", local + "/state"},
		{"XDG_DATA_HOME", local + "/share"},
	}

	path := cfg.Home + "/.local/bin"
	if cfg.Tools.Atuin {
		env = append(env, EnvVar{"ATUIN_DB_PATH", local + "/share/atuin/history.db"})
		path += ":" + cfg.Home + "/.atuin/bin"
	}
	if cfg.Tools.Starship {
		env = append(env, EnvVar{"STARSHIP_CACHE", cache + "/starship"})
	}
	if cfg.Tools.Mise {
		// toolchains stay in the image, not in the persisted data volume
		env = append(env,
			EnvVar{"MISE_DATA_DIR", cfg.Home + "/.local/share/mise"},
			EnvVar{"MISE_CACHE_DIR", cache + "/mise"},
		)
		path += ":" + cfg.Home + "/.local/share/mise/shims"
	}

	for _, tc := range cfg.Toolchains {
		switch tc.Lang {
		case LangNode:
			env = append(env, EnvVar{"npm_config_cache", cache + "/npm"})
		case LangRust:
			env = append(env, EnvVar{"CARGO_TARGET_DIR", cache + "/cargo-target"})
		case LangPython:
			env = append(env, EnvVar{"PIP_CACHE_DIR", cache + "/pip"})
		case LangGo:
			env = append(env,
				EnvVar{"GOPATH", local + "/go"},
				EnvVar{"GOMODCACHE", cache + "/go/mod"},
				EnvVar{"GOCACHE", cache + "/go/build"},
			)
			path += ":" + local + "/go/bin"
		}
	}

	env = append(env, EnvVar{"PATH", path + ":$PATH"})
	return env
}
