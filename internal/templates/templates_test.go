package templates

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var goldenVars = map[string]string{
	"bot_name":                  "TradeConfirmBot",
	"subreddit_name":            "pkmntcgtrades",
	"comment_author":            "bob",
	"comment_id":                "k2b",
	"comment_url":               "https://www.reddit.com/r/pkmntcgtrades/comments/abc/_/k2b/",
	"parent_author":             "alice",
	"parent_id":                 "k2a",
	"old_comment_flair":         "Trades: 4",
	"new_comment_flair":         "Trades: 5",
	"old_parent_flair":          "Trades: 9",
	"new_parent_flair":          "Trades: 10",
	"month_name":                "October",
	"year":                      "2026",
	"previous_month_submission": "https://www.reddit.com/r/pkmntcgtrades/comments/prev/",
}

func TestDefaults_Golden(t *testing.T) {
	g := goldie.New(t)

	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			text, err := Default(name)
			require.NoError(t, err)

			out, missing := Render(text, goldenVars)
			assert.Empty(t, missing, "bundled template references an undefined variable")
			g.Assert(t, name, []byte(out))
		})
	}
}

func TestNames_ListsEveryTemplate(t *testing.T) {
	assert.Equal(t, []string{
		AlreadyConfirmed,
		CantConfirmUsername,
		MonthlyPost,
		MonthlyPostTitle,
		NoParent,
		OldConfirmationThread,
		SelfConfirmation,
		TradeConfirmation,
	}, Names())
}

func TestDefault_Unknown(t *testing.T) {
	_, err := Default("does_not_exist")
	assert.ErrorIs(t, err, ErrNoDefault)

	_, err = Default("../templates")
	assert.ErrorIs(t, err, ErrNoDefault)
}

func TestRender(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		vars        map[string]string
		want        string
		wantMissing []string
	}{
		{name: "substitutes", text: "hi {user}!", vars: map[string]string{"user": "bob"}, want: "hi bob!"},
		{name: "escaped braces", text: "{{user}} is {user}", vars: map[string]string{"user": "bob"}, want: "{user} is bob"},
		{name: "unknown left in place", text: "{a} {b} {b}", vars: map[string]string{"a": "1"}, want: "1 {b} {b}", wantMissing: []string{"b"}},
		{name: "lone braces", text: "{ x } {} }", vars: nil, want: "{ x } {} }"},
		{name: "unterminated", text: "tail {user", vars: map[string]string{"user": "bob"}, want: "tail {user"},
		{name: "empty", text: "", vars: nil, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, missing := Render(tt.text, tt.vars)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantMissing, missing)
		})
	}
}
