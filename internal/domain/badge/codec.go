// Package badge encodes and decodes the trade count carried in a user's flair label.
package badge

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ericfisherdev/tradeconfirm/internal/domain/model"
)

var (
	countPattern    = regexp.MustCompile(`Trades: (\d+)`)
	templatePattern = regexp.MustCompile(`Trades: ((\d+)-(\d+))`)
)

// ErrNoMatchingTemplate indicates no declared label template covers a count.
var ErrNoMatchingTemplate = errors.New("no label template matches count")

// NoMatchingTemplateError reports the count that could not be placed and the
// free-form prefix of the label that would have been kept.
type NoMatchingTemplateError struct {
	Count  int
	Prefix string
}

func (e *NoMatchingTemplateError) Error() string {
	return fmt.Sprintf("%v: %d", ErrNoMatchingTemplate, e.Count)
}

func (e *NoMatchingTemplateError) Is(target error) bool { return target == ErrNoMatchingTemplate }

// Badge is a decoded counter label.
type Badge struct {
	Prefix string
	Count  int
}

// Parse decodes a label. An empty label decodes to a zero count. A non-empty
// label without a "Trades: N" counter is custom text and reports ok=false.
func Parse(label string) (Badge, bool) {
	label = strings.TrimSpace(label)
	if label == "" {
		return Badge{}, true
	}

	loc := countPattern.FindStringSubmatchIndex(label)
	if loc == nil {
		return Badge{}, false
	}

	n, err := strconv.Atoi(label[loc[2]:loc[3]])
	if err != nil {
		return Badge{}, false
	}

	return Badge{Prefix: prefixOf(label[:loc[0]]), Count: n}, true
}

func prefixOf(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "|")
	return strings.TrimSpace(s)
}

// ParseTemplate builds a LabelTemplate from a flair template's text. ok is
// false when the text carries no "Trades: min-max" range or the range is inverted.
func ParseTemplate(id, text string, modOnly bool) (model.LabelTemplate, bool) {
	m := templatePattern.FindStringSubmatch(text)
	if m == nil {
		return model.LabelTemplate{}, false
	}
	lo, err := strconv.Atoi(m[2])
	if err != nil {
		return model.LabelTemplate{}, false
	}
	hi, err := strconv.Atoi(m[3])
	if err != nil || hi < lo {
		return model.LabelTemplate{}, false
	}
	return model.LabelTemplate{ID: id, Text: text, Min: lo, Max: hi, ModOnly: modOnly}, true
}

// Select returns the template whose range contains count. Moderators get a
// mod-only variant when one covers the count; everyone else never does.
func Select(templates []model.LabelTemplate, count int, moderator bool) (model.LabelTemplate, error) {
	var fallback *model.LabelTemplate
	for i := range templates {
		t := templates[i]
		if !t.Contains(count) {
			continue
		}
		if t.ModOnly {
			if moderator {
				return t, nil
			}
			continue
		}
		if fallback == nil {
			fallback = &templates[i]
		}
	}
	if fallback != nil {
		return *fallback, nil
	}
	return model.LabelTemplate{}, &NoMatchingTemplateError{Count: count}
}

// Render writes count into the template's range slot.
func Render(t model.LabelTemplate, count int) (model.Label, error) {
	m := templatePattern.FindStringSubmatchIndex(t.Text)
	if m == nil {
		return model.Label{}, fmt.Errorf("label template %q has no trade range", t.ID)
	}
	if !t.Contains(count) {
		return model.Label{}, &NoMatchingTemplateError{Count: count}
	}
	text := t.Text[:m[2]] + strconv.Itoa(count) + t.Text[m[3]:]
	return model.Label{Text: text, TemplateID: t.ID}, nil
}

// Encode selects the matching template for count and renders it. On failure
// the returned error is a *NoMatchingTemplateError carrying previous's prefix.
func Encode(templates []model.LabelTemplate, count int, moderator bool, previous string) (model.Label, error) {
	t, err := Select(templates, count, moderator)
	if err != nil {
		var nm *NoMatchingTemplateError
		if errors.As(err, &nm) {
			if b, ok := Parse(previous); ok {
				nm.Prefix = b.Prefix
			}
		}
		return model.Label{}, err
	}
	return Render(t, count)
}
