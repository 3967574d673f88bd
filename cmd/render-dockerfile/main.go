package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"paul-envs/internal/envgen"
)

func main() {
	// Flags
	outputDir := flag.String("output", "./render-output", "Output directory for the build context")
	configsDir := flag.String("configs", "", "configs directory copied into the home seed")
	name := flag.String("name", "preview", "Environment name")
	flag.Parse()

	// Configure logging
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	slog.SetDefault(slog.New(handler))

	args := flag.Args()
	if len(args) == 1 && (args[0] == "help" || args[0] == "-h") {
		printUsage()
		os.Exit(0)
	}

	// Override defaults with provided key=value pairs
	params := envgen.DefaultParams()
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			fmt.Printf("Invalid argument: %s (expected key=value)\n", arg)
			continue
		}
		if err := applyParam(&params, key, value); err != nil {
			fmt.Printf("Invalid value for %s: %v\n", key, err)
			os.Exit(1)
		}
	}

	cfg, warnings, err := envgen.Resolve(*name, params)
	if err != nil {
		slog.Error("Failed to resolve configuration", "error", err)
		os.Exit(1)
	}
	for _, w := range warnings {
		slog.Warn("Build configuration", "param", w.Field, "warning", w.Message)
	}

	fmt.Println("=== Configuration ===")
	fmt.Printf("Name:        %s\n", cfg.Name)
	fmt.Printf("BaseImage:   %s\n", cfg.BaseImage)
	fmt.Printf("User:        %s (%d:%d)\n", cfg.Username, cfg.UID, cfg.GID)
	fmt.Printf("Shell:       %s\n", cfg.Shell)
	for _, tc := range cfg.Toolchains {
		source := "mise"
		if tc.Source == envgen.FromDistro {
			source = "distro"
		}
		fmt.Printf("Toolchain:   %s@%s (%s)\n", tc.Lang, tc.Version, source)
	}
	fmt.Printf("Output:      %s\n", *outputDir)
	fmt.Println()

	if err := checkOutputDir(*outputDir); err != nil {
		slog.Error("Refusing to overwrite output directory", "error", err)
		os.Exit(1)
	}

	generator, err := envgen.NewGenerator()
	if err != nil {
		slog.Error("Failed to create generator", "error", err)
		os.Exit(1)
	}

	if err := generator.Generate(cfg, *configsDir, *outputDir); err != nil {
		slog.Error("Failed to generate build context", "error", err)
		os.Exit(1)
	}

	fmt.Println("=== Generated Files ===")
	printTree(*outputDir, "")
	fmt.Println()
	fmt.Printf("Build it with: docker build -t paulenvs-%s %s\n", cfg.Name, *outputDir)
}

func printUsage() {
	fmt.Println("render-dockerfile - Render an environment build context from key=value pairs")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  render-dockerfile [flags] key=value [key=value ...]")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  -output string    Output directory (default \"./render-output\")")
	fmt.Println("  -configs string   configs directory copied into the home seed")
	fmt.Println("  -name string      Environment name (default \"preview\")")
	fmt.Println()
	fmt.Println("Supported keys:")
	fmt.Println("  uid, gid, username, shell")
	fmt.Println("  nodejs, rust, python, go        - none, latest or a version")
	fmt.Println("  neovim, starship, atuin, mise, zellij, wasm, sudo - true or false")
	fmt.Println("  packages                        - space separated")
	fmt.Println("  git_name, git_email, base_image")
	fmt.Println()
	fmt.Println("Example:")
	fmt.Println("  render-dockerfile shell=zsh nodejs=22 starship=true git_name=\"Jane Doe\"")
}

func applyParam(p *envgen.Params, key, value string) error {
	switch key {
	case "uid", "gid":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		if key == "uid" {
			p.UID = n
		} else {
			p.GID = n
		}
	case "username":
		p.Username = value
	case "shell":
		p.Shell = value
	case "nodejs":
		p.Node = value
	case "rust":
		p.Rust = value
	case "python":
		p.Python = value
	case "go":
		p.Go = value
	case "packages":
		p.Packages = value
	case "git_name":
		p.GitName = value
	case "git_email":
		p.GitEmail = value
	case "base_image":
		p.BaseImage = value
	case "neovim", "starship", "atuin", "mise", "zellij", "wasm", "sudo":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		switches := map[string]*bool{
			"neovim": &p.Neovim, "starship": &p.Starship, "atuin": &p.Atuin,
			"mise": &p.Mise, "zellij": &p.Zellij, "wasm": &p.Wasm, "sudo": &p.Sudo,
		}
		*switches[key] = b
	default:
		fmt.Printf("Unknown key: %s\n", key)
	}
	return nil
}

// checkOutputDir accepts a missing or empty directory, or one holding a
// previously rendered context. Generate replaces the whole directory.
func checkOutputDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	if _, err := os.Stat(filepath.Join(dir, envgen.DockerfileName)); err != nil {
		return fmt.Errorf("%s is not empty and holds no %s", dir, envgen.DockerfileName)
	}
	return nil
}

func printTree(path string, prefix string) {
	entries, _ := os.ReadDir(path)
	for i, entry := range entries {
		connector := "├── "
		if i == len(entries)-1 {
			connector = "└── "
		}
		fmt.Printf("%s%s%s\n", prefix, connector, entry.Name())
		if entry.IsDir() {
			newPrefix := prefix + "│   "
			if i == len(entries)-1 {
				newPrefix = prefix + "    "
			}
			printTree(path+"/"+entry.Name(), newPrefix)
		}
	}
}
