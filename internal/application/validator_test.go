package application_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ericfisherdev/tradeconfirm/internal/application"
	"github.com/ericfisherdev/tradeconfirm/internal/domain/model"
)

func baseInput() application.ValidationInput {
	return application.ValidationInput{
		Comment: model.Comment{
			ID:           "c2",
			Author:       "Bob",
			Body:         "Confirmed!",
			ParentID:     "t1_c1",
			SubmissionID: "s1",
		},
		Submission: model.Submission{ID: "s1", Author: "TradeBot"},
		Parent: &model.Comment{
			ID:           "c1",
			Author:       "Alice",
			Body:         "Sold item to u/Bob",
			ParentID:     "t3_s1",
			SubmissionID: "s1",
			IsRoot:       true,
		},
		BotName:         "TradeBot",
		CurrentThreadID: "s1",
		Moderators:      application.NewModerators([]string{"ModMike"}),
	}
}

func TestValidate_Rules(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(in *application.ValidationInput)
		wantKind   model.OutcomeKind
		wantReason model.Reason
	}{
		{
			name:     "valid confirmation",
			mutate:   func(*application.ValidationInput) {},
			wantKind: model.OutcomeValid,
		},
		{
			name:       "not a bot thread",
			mutate:     func(in *application.ValidationInput) { in.Submission.Author = "someone" },
			wantKind:   model.OutcomeNotApplicable,
			wantReason: model.ReasonNotBotThread,
		},
		{
			name:       "locked thread",
			mutate:     func(in *application.ValidationInput) { in.Submission.Locked = true },
			wantKind:   model.OutcomeNotApplicable,
			wantReason: model.ReasonNotBotThread,
		},
		{
			name: "root in current thread",
			mutate: func(in *application.ValidationInput) {
				in.Comment.IsRoot = true
				in.Comment.ParentID = "t3_s1"
			},
			wantKind:   model.OutcomeNotApplicable,
			wantReason: model.ReasonRootInCurrentThread,
		},
		{
			name: "root in old thread",
			mutate: func(in *application.ValidationInput) {
				in.Comment.IsRoot = true
				in.CurrentThreadID = "s9"
			},
			wantKind:   model.OutcomeInvalid,
			wantReason: model.ReasonOldThread,
		},
		{
			name:       "not a confirmation",
			mutate:     func(in *application.ValidationInput) { in.Comment.Body = "thanks!" },
			wantKind:   model.OutcomeNotApplicable,
			wantReason: model.ReasonNotAConfirmation,
		},
		{
			name:       "parent missing",
			mutate:     func(in *application.ValidationInput) { in.Parent = nil },
			wantKind:   model.OutcomeInvalid,
			wantReason: model.ReasonNoParent,
		},
		{
			name:       "parent removed",
			mutate:     func(in *application.ValidationInput) { in.Parent.Removed = true },
			wantKind:   model.OutcomeInvalid,
			wantReason: model.ReasonNoParent,
		},
		{
			name:       "already confirmed",
			mutate:     func(in *application.ValidationInput) { in.ParentHasValidOutcome = true },
			wantKind:   model.OutcomeInvalid,
			wantReason: model.ReasonAlreadyConfirmed,
		},
		{
			name:       "parent carries processed marker",
			mutate:     func(in *application.ValidationInput) { in.Parent.Saved = true },
			wantKind:   model.OutcomeInvalid,
			wantReason: model.ReasonAlreadyConfirmed,
		},
		{
			name: "self confirmation",
			mutate: func(in *application.ValidationInput) {
				in.Comment.Author = "alice"
			},
			wantKind:   model.OutcomeInvalid,
			wantReason: model.ReasonSelfOrBot,
		},
		{
			name:       "parent by bot",
			mutate:     func(in *application.ValidationInput) { in.Parent.Author = "tradebot" },
			wantKind:   model.OutcomeInvalid,
			wantReason: model.ReasonSelfOrBot,
		},
		{
			name:       "username not tagged",
			mutate:     func(in *application.ValidationInput) { in.Comment.Author = "Carol" },
			wantKind:   model.OutcomeInvalid,
			wantReason: model.ReasonUsernameNotTagged,
		},
		{
			name:       "prefix of another username is not a tag",
			mutate:     func(in *application.ValidationInput) { in.Parent.Body = "Sold item to u/Bobby" },
			wantKind:   model.OutcomeInvalid,
			wantReason: model.ReasonUsernameNotTagged,
		},
		{
			name: "tag found in html body",
			mutate: func(in *application.ValidationInput) {
				in.Parent.Body = "Sold item"
				in.Parent.BodyHTML = `<p>Sold item to <a href="/u/bob">/u/bob</a></p>`
			},
			wantKind: model.OutcomeValid,
		},
		{
			name: "moderator approval overrides missing tag",
			mutate: func(in *application.ValidationInput) {
				in.Comment.Author = "modmike"
				in.Comment.Body = "Approved"
			},
			wantKind: model.OutcomeValid,
		},
		{
			name: "non-moderator approval does not override",
			mutate: func(in *application.ValidationInput) {
				in.Comment.Author = "Carol"
				in.Comment.Body = "approved"
			},
			wantKind:   model.OutcomeInvalid,
			wantReason: model.ReasonUsernameNotTagged,
		},
		{
			name: "nested reply without moderator approval",
			mutate: func(in *application.ValidationInput) {
				in.Parent.IsRoot = false
				in.Parent.ParentID = "t1_c0"
			},
			wantKind:   model.OutcomeNotApplicable,
			wantReason: model.ReasonNestedReply,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := baseInput()
			tt.mutate(&in)

			got := application.Validate(in)
			assert.Equal(t, tt.wantKind, got.Kind)
			assert.Equal(t, tt.wantReason, got.Reason)
		})
	}
}

func TestValidate_ValidCarriesParties(t *testing.T) {
	got := application.Validate(baseInput())

	assert.Equal(t, "Bob", got.Confirmer)
	assert.Equal(t, "Alice", got.ConfirmedParty)
	assert.Equal(t, "c1", got.Context.ParentID)
	assert.Equal(t, "valid:bob>alice", got.Summary())
}

func TestValidate_InvalidCarriesContext(t *testing.T) {
	in := baseInput()
	in.Comment.Author = "Carol"

	got := application.Validate(in)

	assert.Equal(t, model.OutcomeContext{CommentID: "c2", ParentID: "c1", ParentAuthor: "Alice"}, got.Context)
}

func TestValidate_ModeratorApprovalOnNestedReply(t *testing.T) {
	in := baseInput()
	in.Comment = model.Comment{
		ID:           "c3",
		Author:       "ModMike",
		Body:         "approved",
		ParentID:     "t1_c2",
		SubmissionID: "s1",
	}
	in.Parent = &model.Comment{ID: "c2", Author: "Bob", Body: "confirmed", ParentID: "t1_c1", SubmissionID: "s1"}
	in.Grandparent = &model.Comment{ID: "c1", Author: "Alice", Body: "Sold to u/Bob", ParentID: "t3_s1", SubmissionID: "s1", IsRoot: true}

	got := application.Validate(in)

	assert.Equal(t, model.OutcomeValid, got.Kind)
	assert.Equal(t, "Bob", got.Confirmer)
	assert.Equal(t, "Alice", got.ConfirmedParty)
	assert.Equal(t, "c1", got.Context.ParentID)
}

func TestValidate_ModeratorApprovalOnConfirmedRoot(t *testing.T) {
	nested := func() application.ValidationInput {
		in := baseInput()
		in.Comment = model.Comment{ID: "c3", Author: "ModMike", Body: "approved", ParentID: "t1_c2", SubmissionID: "s1"}
		in.Parent = &model.Comment{ID: "c2", Author: "Bob", Body: "confirmed", ParentID: "t1_c1", SubmissionID: "s1"}
		in.Grandparent = &model.Comment{ID: "c1", Author: "Alice", ParentID: "t3_s1", SubmissionID: "s1", IsRoot: true}
		return in
	}

	tests := []struct {
		name   string
		mutate func(in *application.ValidationInput)
	}{
		{name: "recorded outcome", mutate: func(in *application.ValidationInput) { in.GrandparentHasValidOutcome = true }},
		{name: "processed marker", mutate: func(in *application.ValidationInput) { in.Grandparent.Saved = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := nested()
			tt.mutate(&in)

			got := application.Validate(in)

			assert.Equal(t, model.OutcomeInvalid, got.Kind)
			assert.Equal(t, model.ReasonAlreadyConfirmed, got.Reason)
			assert.Equal(t, "c1", got.Context.ParentID)
		})
	}
}

func TestValidate_ModeratorApprovalNeedsRootGrandparent(t *testing.T) {
	in := baseInput()
	in.Comment.Author = "ModMike"
	in.Comment.Body = "approved"
	in.Parent.IsRoot = false
	in.Grandparent = &model.Comment{ID: "c0", Author: "Alice", IsRoot: false}

	got := application.Validate(in)

	assert.Equal(t, model.OutcomeNotApplicable, got.Kind)
	assert.Equal(t, model.ReasonNestedReply, got.Reason)
}

func TestUserKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Bob", "bob"},
		{"u/Bob", "bob"},
		{"/u/BOB", "bob"},
		{"  alice ", "alice"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, application.UserKey(tt.in))
		})
	}
}
