package main

import (
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"paul-envs/internal/completion"
	"paul-envs/internal/launcher"
)

// newRootCmd builds the command tree
func newRootCmd(a *app, logLevel *slog.LevelVar) *cobra.Command {
	var debug bool

	rootCmd := &cobra.Command{
		Use:   "paul-envs",
		Short: "Create, build, run and remove developer containers",
		Long: `paul-envs builds a developer container per project: a user account
matching yours, your shell, language toolchains and CLI tools, with your
dotfiles from the configs directory copied into the home directory.

Caches and shell history live in persisted volumes, so recreating the
container keeps them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if debug {
				logLevel.Set(slog.LevelDebug)
			}
		},
	}
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", a.cfg.Debug, "Enable debug logging")

	resolver := completion.NewResolver(completion.DefaultGrammar(), a.Lister())

	rootCmd.AddCommand(
		newCreateCmd(a),
		newListCmd(a),
		newBuildCmd(a),
		newRunCmd(a),
		newRemoveCmd(a),
	)
	wireCompletion(rootCmd, resolver)

	return rootCmd
}

func newCreateCmd(a *app) *cobra.Command {
	req := launcher.CreateRequest{Params: a.cfg.Defaults()}
	p := &req.Params

	cmd := &cobra.Command{
		Use:   "create <project-dir>",
		Short: "Create an environment for a project directory",
		Long: `Creates an environment for the project directory. The project is mounted
in the container at ~/projects/<name>. The name defaults to the directory name.

Language versions are "none", "latest" or a version such as 22 or 3.12.
Pinned versions need mise; without it the distribution default is installed.

Example:
  paul-envs create ~/src/api --shell zsh --nodejs 22 --starship --port 3000`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.Manager()
			if err != nil {
				return err
			}
			req.ProjectDir = args[0]
			rec, _, err := m.Create(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created environment %s. Build it with: paul-envs build %s\n", rec.Name, rec.Name)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.Name, "name", "", "Environment name (default: project directory name)")
	f.BoolVar(&req.Force, "force", false, "Replace an existing environment with the same name")
	f.IntVar(&p.UID, "uid", p.UID, "UID of the container user")
	f.IntVar(&p.GID, "gid", p.GID, "GID of the container user")
	f.StringVar(&p.Username, "username", p.Username, "Name of the container user")
	f.StringVar(&p.Shell, "shell", p.Shell, "Login shell: bash, zsh or fish")
	f.StringVar(&p.Node, "nodejs", p.Node, "Node.js version")
	f.StringVar(&p.Rust, "rust", p.Rust, "Rust version")
	f.StringVar(&p.Python, "python", p.Python, "Python version")
	f.StringVar(&p.Go, "go", p.Go, "Go version")
	f.StringVar(&p.GitName, "git-name", p.GitName, "Git author name")
	f.StringVar(&p.GitEmail, "git-email", p.GitEmail, "Git author email")
	f.StringVar(&p.Packages, "packages", p.Packages, "Additional OS packages, space separated")
	f.BoolVar(&p.Neovim, "neovim", p.Neovim, "Install neovim")
	f.BoolVar(&p.Starship, "starship", p.Starship, "Install the starship prompt")
	f.BoolVar(&p.Atuin, "atuin", p.Atuin, "Install atuin shell history")
	f.BoolVar(&p.Mise, "mise", p.Mise, "Install toolchains through mise")
	f.BoolVar(&p.Zellij, "zellij", p.Zellij, "Install zellij")
	f.BoolVar(&p.Wasm, "wasm", p.Wasm, "Add the rust wasm32 target (needs --rust)")
	f.BoolVar(&p.Sudo, "sudo", p.Sudo, "Give the container user passwordless sudo")
	f.StringVar(&p.BaseImage, "base-image", p.BaseImage, "Base image")
	f.StringVar(&p.Memory, "memory", p.Memory, "Memory limit, e.g. 4GB")
	f.StringArrayVar(&p.Ports, "port", nil, "Publish a port, host:container (repeatable)")
	f.StringArrayVar(&p.Volumes, "volume", nil, "Mount source:destination[:ro] (repeatable)")

	return cmd
}

func newListCmd(a *app) *cobra.Command {
	var names, long bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List environments",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.Manager()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if !long {
				envs, err := m.Names()
				if err != nil {
					return err
				}
				return printNames(out, envs, names)
			}

			summaries, err := m.List(cmd.Context(), true)
			if err != nil {
				return err
			}
			return printSummaries(out, summaries)
		},
	}
	cmd.Flags().BoolVar(&names, "names", false, "Print one name per line")
	cmd.Flags().BoolVar(&long, "long", false, "Show project directories and images")
	return cmd
}

func printNames(out io.Writer, names []string, plain bool) error {
	if plain {
		for _, n := range names {
			if _, err := fmt.Fprintln(out, n); err != nil {
				return err
			}
		}
		return nil
	}
	if len(names) == 0 {
		_, err := fmt.Fprintln(out, "No environments. Create one with: paul-envs create <project-dir>")
		return err
	}
	_, err := fmt.Fprint(out, "Environments:\n"+completion.FormatBulletList(names))
	return err
}

func printSummaries(out io.Writer, summaries []launcher.Summary) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPROJECT\tIMAGE\tSIZE\tBUILT")
	for _, s := range summaries {
		image, size, built := "-", "-", "never"
		if s.Image != nil {
			image = launcher.ImageTag(s.Name)
			size = humanize.Bytes(uint64(s.Image.Size))
			if !s.Image.Created.IsZero() {
				built = humanize.Time(s.Image.Created)
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.Name, s.ProjectDir, image, size, built)
	}
	return tw.Flush()
}

func newBuildCmd(a *app) *cobra.Command {
	var noCache bool

	cmd := &cobra.Command{
		Use:   "build <name>",
		Short: "Build the image of an environment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.Manager()
			if err != nil {
				return err
			}
			if err := m.Build(cmd.Context(), args[0], noCache); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Built %s. Start it with: paul-envs run %s\n", launcher.ImageTag(args[0]), args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Do not use the build cache")
	return cmd
}

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run <name>",
		Short: "Open a shell in an environment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.Manager()
			if err != nil {
				return err
			}
			return m.Run(cmd.Context(), args[0])
		},
	}
}

func newRemoveCmd(a *app) *cobra.Command {
	var keepVolumes bool

	cmd := &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove an environment, its container and image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.Manager()
			if err != nil {
				return err
			}
			if err := m.Remove(cmd.Context(), args[0], keepVolumes); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed environment %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&keepVolumes, "keep-volumes", false, "Keep the persisted cache and local volumes")
	return cmd
}

// wireCompletion routes cobra's completion requests to the resolver
func wireCompletion(root *cobra.Command, resolver *completion.Resolver) {
	grammar := completion.DefaultGrammar()

	for _, cmd := range root.Commands() {
		spec, ok := grammar.Lookup(cmd.Name())
		if !ok {
			continue
		}

		switch spec.Positional {
		case completion.PositionalName:
			cmd.ValidArgsFunction = func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
				words := append([]string{cmd.Name()}, args...)
				return resolver.Complete(cmd.Context(), words, toComplete), cobra.ShellCompDirectiveNoFileComp
			}
		case completion.PositionalPath:
			cmd.ValidArgsFunction = func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
				return nil, cobra.ShellCompDirectiveFilterDirs
			}
		default:
			cmd.ValidArgsFunction = cobra.NoFileCompletions
		}

		for _, f := range spec.Flags {
			if len(f.Values) == 0 || f.Bool {
				continue
			}
			name := f.Name
			_ = cmd.RegisterFlagCompletionFunc(name, func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
				return resolver.FlagValues(cmd.Name(), name, toComplete), cobra.ShellCompDirectiveNoFileComp
			})
		}
	}
}
