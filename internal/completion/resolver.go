package completion

import (
	"context"
	"log/slog"
	"strings"

	"github.com/samber/lo"
)

// Lister returns the environment names offered as candidates
type Lister interface {
	ListNames(ctx context.Context) ([]string, error)
}

// ListerFunc adapts a function to Lister
type ListerFunc func(ctx context.Context) ([]string, error)

// ListNames calls f
func (f ListerFunc) ListNames(ctx context.Context) ([]string, error) {
	return f(ctx)
}

// Resolver maps a partially typed command line to candidates. It keeps no
// state between requests: names are listed again on every call.
type Resolver struct {
	grammar *Grammar
	lister  Lister
}

// NewResolver creates a Resolver over grammar and lister
func NewResolver(grammar *Grammar, lister Lister) *Resolver {
	return &Resolver{grammar: grammar, lister: lister}
}

// Complete returns the candidates for toComplete. args are the words
// already typed after the program name, starting with the subcommand.
func (r *Resolver) Complete(ctx context.Context, args []string, toComplete string) []string {
	if len(args) == 0 {
		return filterPrefix(r.grammar.Words(), toComplete)
	}

	cmd, ok := r.grammar.Lookup(args[0])
	if !ok {
		return nil
	}
	rest := args[1:]

	// value of a flag given as the previous word
	if len(rest) > 0 {
		if f, ok := flagWord(cmd, rest[len(rest)-1]); ok && f.TakesValue {
			return filterPrefix(f.Values, toComplete)
		}
	}

	// --flag=value
	if strings.HasPrefix(toComplete, "--") {
		if name, value, found := strings.Cut(toComplete[2:], "="); found {
			f, ok := cmd.Flag(name)
			if !ok {
				return nil
			}
			return lo.Map(filterPrefix(f.Values, value), func(v string, _ int) string {
				return "--" + name + "=" + v
			})
		}
	}

	if strings.HasPrefix(toComplete, "-") {
		used := usedFlags(cmd, rest)
		var flags []string
		for _, f := range cmd.Flags {
			if used[f.Name] && !f.Repeatable {
				continue
			}
			flags = append(flags, "--"+f.Name)
		}
		return filterPrefix(flags, toComplete)
	}

	if cmd.Positional != PositionalName || countPositionals(cmd, rest) > 0 {
		return nil
	}
	return filterPrefix(r.names(ctx), toComplete)
}

// FlagValues returns the static candidates of a flag
func (r *Resolver) FlagValues(command, flag, toComplete string) []string {
	cmd, ok := r.grammar.Lookup(command)
	if !ok {
		return nil
	}
	f, ok := cmd.Flag(flag)
	if !ok {
		return nil
	}
	return filterPrefix(f.Values, toComplete)
}

// names lists environments; failures yield no candidates
func (r *Resolver) names(ctx context.Context) []string {
	if r.lister == nil {
		return nil
	}
	names, err := r.lister.ListNames(ctx)
	if err != nil {
		slog.Debug("Listing environments for completion failed", "error", err)
		return nil
	}
	return names
}

// flagWord parses "--name" into the command's flag
func flagWord(cmd *Command, word string) (Flag, bool) {
	if !strings.HasPrefix(word, "--") || strings.Contains(word, "=") {
		return Flag{}, false
	}
	return cmd.Flag(word[2:])
}

func usedFlags(cmd *Command, words []string) map[string]bool {
	used := make(map[string]bool)
	for _, w := range words {
		if !strings.HasPrefix(w, "--") {
			continue
		}
		name, _, _ := strings.Cut(w[2:], "=")
		if _, ok := cmd.Flag(name); ok {
			used[name] = true
		}
	}
	return used
}

// countPositionals counts words that are neither flags nor flag values
func countPositionals(cmd *Command, words []string) int {
	n := 0
	for i := 0; i < len(words); i++ {
		w := words[i]
		if f, ok := flagWord(cmd, w); ok {
			if f.TakesValue {
				i++
			}
			continue
		}
		if strings.HasPrefix(w, "-") {
			continue
		}
		n++
	}
	return n
}

func filterPrefix(candidates []string, prefix string) []string {
	return lo.Filter(candidates, func(c string, _ int) bool {
		return strings.HasPrefix(c, prefix)
	})
}
