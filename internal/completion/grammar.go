// Package completion resolves tab-completion candidates for the launcher's
// command grammar.
package completion

// Positional tells what a subcommand's positional argument completes to
type Positional int

const (
	PositionalNone Positional = iota
	// PositionalName completes environment names
	PositionalName
	// PositionalPath is a filesystem path left to the shell
	PositionalPath
)

var (
	boolValues    = []string{"true", "false"}
	versionValues = []string{"none", "latest"}
	shellValues   = []string{"bash", "zsh", "fish"}
)

// Flag is a flag of a subcommand
type Flag struct {
	Name       string   // without leading dashes
	TakesValue bool     // consumes the next word
	Bool       bool     // switch; a value is only given as --flag=value
	Values     []string // static value candidates
	Repeatable bool
}

// Command is a subcommand with its flags
type Command struct {
	Name       string
	Aliases    []string
	Flags      []Flag
	Positional Positional
}

// Flag looks up a flag by name
func (c *Command) Flag(name string) (Flag, bool) {
	for _, f := range c.Flags {
		if f.Name == name {
			return f, true
		}
	}
	return Flag{}, false
}

// Grammar is the launcher command line
type Grammar struct {
	Commands []Command
}

// Lookup finds a subcommand by name or alias
func (g *Grammar) Lookup(name string) (*Command, bool) {
	for i := range g.Commands {
		c := &g.Commands[i]
		if c.Name == name {
			return c, true
		}
		for _, a := range c.Aliases {
			if a == name {
				return c, true
			}
		}
	}
	return nil, false
}

// Words returns subcommand names and aliases in grammar order
func (g *Grammar) Words() []string {
	var words []string
	for _, c := range g.Commands {
		words = append(words, c.Name)
		words = append(words, c.Aliases...)
	}
	return words
}

// DefaultGrammar is the grammar of paul-envs
func DefaultGrammar() *Grammar {
	return &Grammar{Commands: []Command{
		{
			Name:       "create",
			Positional: PositionalPath,
			Flags: []Flag{
				{Name: "name", TakesValue: true},
				{Name: "uid", TakesValue: true},
				{Name: "gid", TakesValue: true},
				{Name: "username", TakesValue: true},
				{Name: "shell", TakesValue: true, Values: shellValues},
				{Name: "nodejs", TakesValue: true, Values: versionValues},
				{Name: "rust", TakesValue: true, Values: versionValues},
				{Name: "python", TakesValue: true, Values: versionValues},
				{Name: "go", TakesValue: true, Values: versionValues},
				{Name: "git-name", TakesValue: true},
				{Name: "git-email", TakesValue: true},
				{Name: "packages", TakesValue: true},
				{Name: "neovim", Bool: true, Values: boolValues},
				{Name: "starship", Bool: true, Values: boolValues},
				{Name: "atuin", Bool: true, Values: boolValues},
				{Name: "mise", Bool: true, Values: boolValues},
				{Name: "zellij", Bool: true, Values: boolValues},
				{Name: "wasm", Bool: true, Values: boolValues},
				{Name: "sudo", Bool: true, Values: boolValues},
				{Name: "base-image", TakesValue: true},
				{Name: "memory", TakesValue: true},
				{Name: "port", TakesValue: true, Repeatable: true},
				{Name: "volume", TakesValue: true, Repeatable: true},
				{Name: "force"},
			},
		},
		{
			Name:    "list",
			Aliases: []string{"ls"},
			Flags: []Flag{
				{Name: "names"},
				{Name: "long"},
			},
		},
		{
			Name:       "build",
			Positional: PositionalName,
			Flags:      []Flag{{Name: "no-cache"}},
		},
		{
			Name:       "run",
			Positional: PositionalName,
		},
		{
			Name:       "remove",
			Positional: PositionalName,
			Flags:      []Flag{{Name: "keep-volumes"}},
		},
	}}
}
