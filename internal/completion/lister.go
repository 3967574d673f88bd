package completion

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// bulletPattern matches a "  - name" line of the human-readable listing
var bulletPattern = regexp.MustCompile(`^\s*-\s+(\S+)\s*$`)

// ParseBulletList extracts names from listing output, keeping only lines of
// the form "  - name" with the bullet stripped
func ParseBulletList(output string) []string {
	var names []string
	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		if m := bulletPattern.FindStringSubmatch(sc.Text()); m != nil {
			names = append(names, m[1])
		}
	}
	return names
}

// CommandLister runs an external listing command and scrapes its bullet
// output. It serves launchers that only offer human-readable listings.
type CommandLister struct {
	Path string
	Args []string
}

// ListNames runs the command; a failing command is an error
func (l *CommandLister) ListNames(ctx context.Context) ([]string, error) {
	out, err := exec.CommandContext(ctx, l.Path, l.Args...).Output()
	if err != nil {
		return nil, fmt.Errorf("listing command %s: %w", l.Path, err)
	}
	return ParseBulletList(string(out)), nil
}

// FormatBulletList renders names the way the listing command prints them
func FormatBulletList(names []string) string {
	var b strings.Builder
	for _, n := range names {
		b.WriteString("  - ")
		b.WriteString(n)
		b.WriteByte('\n')
	}
	return b.String()
}
