// Package reddit implements the Forum and TemplateStore ports against the Reddit API.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ericfisherdev/tradeconfirm/internal/domain/badge"
	"github.com/ericfisherdev/tradeconfirm/internal/domain/model"
	"github.com/ericfisherdev/tradeconfirm/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Forum = (*Client)(nil)

const apiBaseURL = "https://oauth.reddit.com"

// Client implements driven.Forum for a single subreddit.
type Client struct {
	http      *http.Client
	baseURL   string
	subreddit string
	username  string
}

// NewClient creates a Reddit client authenticated as the bot account. The
// ctx bounds token refreshes for the life of the client.
func NewClient(ctx context.Context, creds Credentials, subreddit string) *Client {
	return &Client{
		http: &http.Client{
			Transport: newAuthTransport(ctx, creds),
			Timeout:   30 * time.Second,
		},
		baseURL:   apiBaseURL,
		subreddit: subreddit,
		username:  creds.Username,
	}
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base URL.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL, subreddit, username string) *Client {
	return &Client{
		http:      httpClient,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		subreddit: subreddit,
		username:  username,
	}
}

// Subreddit returns the subreddit the client acts on.
func (c *Client) Subreddit() string { return c.subreddit }

// Me returns the bot account name.
func (c *Client) Me(ctx context.Context) (string, error) {
	var me struct {
		Name string `json:"name"`
	}
	if err := c.get(ctx, "me", "/api/v1/me", nil, &me); err != nil {
		return "", err
	}
	if me.Name == "" {
		return c.username, nil
	}
	return me.Name, nil
}

// ListNewComments returns one page of the subreddit comment stream, newest first.
func (c *Client) ListNewComments(ctx context.Context, after string, limit int) (driven.CommentPage, error) {
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	if after != "" {
		q.Set("after", after)
	}

	var l listing
	if err := c.get(ctx, "list comments", "/r/"+c.subreddit+"/comments", q, &l); err != nil {
		return driven.CommentPage{}, err
	}

	comments, err := l.comments()
	if err != nil {
		return driven.CommentPage{}, fmt.Errorf("decode comment listing: %w", err)
	}

	slog.Debug("reddit api call", "endpoint", "comments", "after", after, "count", len(comments))

	return driven.CommentPage{Comments: comments, After: l.Data.After}, nil
}

// GetComment fetches a single comment by id.
func (c *Client) GetComment(ctx context.Context, id string) (*model.Comment, error) {
	l, err := c.info(ctx, "get comment", "t1_"+id)
	if err != nil {
		return nil, err
	}
	comments, err := l.comments()
	if err != nil {
		return nil, fmt.Errorf("decode comment %s: %w", id, err)
	}
	if len(comments) == 0 {
		return nil, fmt.Errorf("get comment %s: %w", id, driven.ErrNotFound)
	}
	return &comments[0], nil
}

// GetSubmission fetches a single submission by id.
func (c *Client) GetSubmission(ctx context.Context, id string) (*model.Submission, error) {
	l, err := c.info(ctx, "get submission", "t3_"+id)
	if err != nil {
		return nil, err
	}
	subs, err := l.submissions()
	if err != nil {
		return nil, fmt.Errorf("decode submission %s: %w", id, err)
	}
	if len(subs) == 0 {
		return nil, fmt.Errorf("get submission %s: %w", id, driven.ErrNotFound)
	}
	return &subs[0], nil
}

// ListBotSubmissions returns the bot account's own submissions, newest first.
func (c *Client) ListBotSubmissions(ctx context.Context, limit int) ([]model.Submission, error) {
	q := url.Values{"sort": {"new"}, "limit": {strconv.Itoa(limit)}}

	var l listing
	if err := c.get(ctx, "list bot submissions", "/user/"+c.username+"/submitted", q, &l); err != nil {
		return nil, err
	}
	return l.submissions()
}

// ListModerators returns the subreddit's moderator names.
func (c *Client) ListModerators(ctx context.Context) ([]string, error) {
	var resp struct {
		Data struct {
			Children []struct {
				Name string `json:"name"`
			} `json:"children"`
		} `json:"data"`
	}
	if err := c.get(ctx, "list moderators", "/r/"+c.subreddit+"/about/moderators", nil, &resp); err != nil {
		return nil, err
	}

	mods := make([]string, 0, len(resp.Data.Children))
	for _, m := range resp.Data.Children {
		mods = append(mods, m.Name)
	}
	return mods, nil
}

// ListLabelTemplates returns the subreddit's user flair templates that carry
// a trade range. Templates without a range are skipped.
func (c *Client) ListLabelTemplates(ctx context.Context) ([]model.LabelTemplate, error) {
	var resp []struct {
		ID      string `json:"id"`
		Text    string `json:"text"`
		ModOnly bool   `json:"mod_only"`
	}
	if err := c.get(ctx, "list flair templates", "/r/"+c.subreddit+"/api/user_flair_v2", nil, &resp); err != nil {
		return nil, err
	}

	templates := make([]model.LabelTemplate, 0, len(resp))
	for _, r := range resp {
		if t, ok := badge.ParseTemplate(r.ID, r.Text, r.ModOnly); ok {
			templates = append(templates, t)
		}
	}
	return templates, nil
}

// GetLabel returns the user's current flair text in the subreddit.
func (c *Client) GetLabel(ctx context.Context, username string) (string, error) {
	var resp struct {
		Users []struct {
			User      string  `json:"user"`
			FlairText *string `json:"flair_text"`
		} `json:"users"`
	}
	q := url.Values{"name": {username}}
	if err := c.get(ctx, "get flair", "/r/"+c.subreddit+"/api/flairlist", q, &resp); err != nil {
		return "", err
	}

	for _, u := range resp.Users {
		if strings.EqualFold(u.User, username) && u.FlairText != nil {
			return *u.FlairText, nil
		}
	}
	return "", nil
}

// Reply posts text as a reply to a comment and returns the new comment id.
func (c *Client) Reply(ctx context.Context, commentID string, text string) (string, error) {
	var resp struct {
		JSON struct {
			apiErrors
			Data struct {
				Things []struct {
					Data struct {
						ID string `json:"id"`
					} `json:"data"`
				} `json:"things"`
			} `json:"data"`
		} `json:"json"`
	}
	form := url.Values{"thing_id": {"t1_" + commentID}, "text": {text}}
	if err := c.post(ctx, "reply", "/api/comment", form, &resp); err != nil {
		return "", err
	}
	if err := resp.JSON.err("reply"); err != nil {
		return "", err
	}
	if len(resp.JSON.Data.Things) == 0 {
		return "", nil
	}
	return resp.JSON.Data.Things[0].Data.ID, nil
}

// Save sets the processed marker on a comment.
func (c *Client) Save(ctx context.Context, commentID string) error {
	return c.post(ctx, "save", "/api/save", url.Values{"id": {"t1_" + commentID}}, nil)
}

// SetLabel assigns a flair template and text to a user.
func (c *Client) SetLabel(ctx context.Context, username string, label model.Label) error {
	form := url.Values{"name": {username}, "text": {label.Text}}
	if label.TemplateID != "" {
		form.Set("flair_template_id", label.TemplateID)
	}

	var resp struct {
		JSON apiErrors `json:"json"`
	}
	if err := c.post(ctx, "set flair", "/r/"+c.subreddit+"/api/selectflair", form, &resp); err != nil {
		return err
	}
	return resp.JSON.err("set flair")
}

// Lock locks a submission.
func (c *Client) Lock(ctx context.Context, submissionID string) error {
	return c.post(ctx, "lock", "/api/lock", url.Values{"id": {"t3_" + submissionID}}, nil)
}

// Sticky pins a submission to the top sticky slot.
func (c *Client) Sticky(ctx context.Context, submissionID string) error {
	return c.setSticky(ctx, submissionID, true)
}

// Unsticky removes a submission from the sticky slots.
func (c *Client) Unsticky(ctx context.Context, submissionID string) error {
	return c.setSticky(ctx, submissionID, false)
}

func (c *Client) setSticky(ctx context.Context, submissionID string, state bool) error {
	form := url.Values{"id": {"t3_" + submissionID}, "state": {strconv.FormatBool(state)}}
	if state {
		form.Set("num", "1")
	}
	var resp struct {
		JSON apiErrors `json:"json"`
	}
	if err := c.post(ctx, "set sticky", "/api/set_subreddit_sticky", form, &resp); err != nil {
		return err
	}
	return resp.JSON.err("set sticky")
}

// CreateSubmission submits a self post to the subreddit and returns its id.
func (c *Client) CreateSubmission(ctx context.Context, sub model.NewSubmission) (string, error) {
	form := url.Values{
		"sr":          {c.subreddit},
		"kind":        {"self"},
		"title":       {sub.Title},
		"text":        {sub.Body},
		"sendreplies": {strconv.FormatBool(!sub.NoReplies)},
	}
	if sub.FlairID != "" {
		form.Set("flair_id", sub.FlairID)
	}

	var resp struct {
		JSON struct {
			apiErrors
			Data struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"data"`
		} `json:"json"`
	}
	if err := c.post(ctx, "submit", "/api/submit", form, &resp); err != nil {
		return "", err
	}
	if err := resp.JSON.err("submit"); err != nil {
		return "", err
	}
	if resp.JSON.Data.ID != "" {
		return resp.JSON.Data.ID, nil
	}
	return trimKind(resp.JSON.Data.Name), nil
}

// SetSuggestedSort sets the default comment sort of a submission.
func (c *Client) SetSuggestedSort(ctx context.Context, submissionID string, sort string) error {
	form := url.Values{"id": {"t3_" + submissionID}, "sort": {sort}}
	return c.post(ctx, "set suggested sort", "/api/set_suggested_sort", form, nil)
}

func (c *Client) info(ctx context.Context, op, fullname string) (listing, error) {
	var l listing
	err := c.get(ctx, op, "/api/info", url.Values{"id": {fullname}}, &l)
	return l, err
}

func (c *Client) get(ctx context.Context, op, path string, q url.Values, out any) error {
	if q == nil {
		q = url.Values{}
	}
	q.Set("raw_json", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	return c.do(ctx, op, req, out)
}

func (c *Client) post(ctx context.Context, op, path string, form url.Values, out any) error {
	form.Set("api_type", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(ctx, op, req, out)
}

func (c *Client) do(ctx context.Context, op string, req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransportError(ctx, op, err)
	}
	defer resp.Body.Close()

	logRateLimit(resp, op)

	if err := checkResponse(op, resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func logRateLimit(resp *http.Response, op string) {
	remaining := resp.Header.Get("X-Ratelimit-Remaining")
	if remaining == "" {
		return
	}

	left, err := strconv.ParseFloat(remaining, 64)
	if err != nil {
		return
	}

	if left < 10 {
		slog.Warn("reddit rate limit low",
			"op", op,
			"remaining", left,
			"reset_in", retryAfter(resp).Round(time.Second),
		)
	}
}
