// Package templates holds the bundled default message templates and the
// placeholder renderer shared by replies and thread posts.
package templates

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

//go:embed defaults/*.md
var defaultsFS embed.FS

// Template names. Each has a bundled default under defaults/<name>.md and may
// be overridden per deployment.
const (
	TradeConfirmation     = "trade_confirmation"
	AlreadyConfirmed      = "already_confirmed"
	CantConfirmUsername   = "cant_confirm_username"
	OldConfirmationThread = "old_confirmation_thread"
	NoParent              = "no_parent"
	SelfConfirmation      = "self_confirmation"
	MonthlyPost           = "monthly_post"
	MonthlyPostTitle      = "monthly_post_title"
)

// ErrNoDefault indicates no bundled default exists for a template name.
var ErrNoDefault = errors.New("no bundled template")

// Default returns the bundled text for name.
func Default(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, "/\\.") {
		return "", fmt.Errorf("%w: %q", ErrNoDefault, name)
	}
	data, err := defaultsFS.ReadFile(path.Join("defaults", name+".md"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %q", ErrNoDefault, name)
		}
		return "", fmt.Errorf("read bundled template %q: %w", name, err)
	}
	return string(data), nil
}

// Names lists every bundled template name in sorted order.
func Names() []string {
	entries, err := defaultsFS.ReadDir("defaults")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if n, ok := strings.CutSuffix(e.Name(), ".md"); ok {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

// Render substitutes {name} placeholders from vars. "{{" and "}}" produce
// literal braces. Placeholders without a value are left in place and their
// names are returned in order of first appearance.
func Render(text string, vars map[string]string) (string, []string) {
	var b strings.Builder
	b.Grow(len(text))

	var missing []string
	for i := 0; i < len(text); {
		c := text[i]
		switch {
		case c == '{' && i+1 < len(text) && text[i+1] == '{':
			b.WriteByte('{')
			i += 2
		case c == '}' && i+1 < len(text) && text[i+1] == '}':
			b.WriteByte('}')
			i += 2
		case c == '{':
			end := placeholderEnd(text, i+1)
			if end < 0 {
				b.WriteByte(c)
				i++
				continue
			}
			name := text[i+1 : end]
			if v, ok := vars[name]; ok {
				b.WriteString(v)
			} else {
				b.WriteString(text[i : end+1])
				missing = appendUnique(missing, name)
			}
			i = end + 1
		default:
			b.WriteByte(c)
			i++
		}
	}

	return b.String(), missing
}

// placeholderEnd returns the index of the "}" closing an identifier that
// starts at from, or -1 when text[from:] does not start a placeholder.
func placeholderEnd(text string, from int) int {
	for j := from; j < len(text); j++ {
		c := text[j]
		switch {
		case c == '}':
			if j == from {
				return -1
			}
			return j
		case c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9'):
		default:
			return -1
		}
	}
	return -1
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
