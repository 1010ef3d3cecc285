package reddit

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/ericfisherdev/tradeconfirm/internal/domain/model"
)

// listing is Reddit's paginated envelope.
type listing struct {
	Kind string `json:"kind"`
	Data struct {
		After    string  `json:"after"`
		Children []thing `json:"children"`
	} `json:"data"`
}

type thing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type commentJSON struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Author          string  `json:"author"`
	Body            string  `json:"body"`
	BodyHTML        string  `json:"body_html"`
	CreatedUTC      float64 `json:"created_utc"`
	ParentID        string  `json:"parent_id"`
	LinkID          string  `json:"link_id"`
	AuthorFlairText *string `json:"author_flair_text"`
	BannedBy        any     `json:"banned_by"`
	Removed         bool    `json:"removed"`
	Locked          bool    `json:"locked"`
	Saved           bool    `json:"saved"`
	Permalink       string  `json:"permalink"`
}

type submissionJSON struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Author     string  `json:"author"`
	CreatedUTC float64 `json:"created_utc"`
	Stickied   bool    `json:"stickied"`
	Locked     bool    `json:"locked"`
	Permalink  string  `json:"permalink"`
}

func unixTime(secs float64) time.Time {
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC()
}

func trimKind(fullname string) string {
	if i := strings.IndexByte(fullname, '_'); i == 2 {
		return fullname[3:]
	}
	return fullname
}

func mapComment(c commentJSON) model.Comment {
	label := ""
	if c.AuthorFlairText != nil {
		label = *c.AuthorFlairText
	}

	removed := c.Removed || c.BannedBy != nil ||
		c.Body == "[removed]" || c.Body == "[deleted]" || c.Author == "[deleted]"

	return model.Comment{
		ID:           c.ID,
		Author:       c.Author,
		Body:         c.Body,
		BodyHTML:     c.BodyHTML,
		CreatedAt:    unixTime(c.CreatedUTC),
		ParentID:     c.ParentID,
		SubmissionID: trimKind(c.LinkID),
		IsRoot:       strings.HasPrefix(c.ParentID, "t3_"),
		AuthorLabel:  label,
		Removed:      removed,
		Locked:       c.Locked,
		Saved:        c.Saved,
		Permalink:    c.Permalink,
	}
}

func mapSubmission(s submissionJSON) model.Submission {
	return model.Submission{
		ID:        s.ID,
		Title:     s.Title,
		Author:    s.Author,
		CreatedAt: unixTime(s.CreatedUTC),
		Stickied:  s.Stickied,
		Locked:    s.Locked,
		Permalink: s.Permalink,
	}
}

// comments decodes every t1 child of the listing, preserving order.
func (l listing) comments() ([]model.Comment, error) {
	out := make([]model.Comment, 0, len(l.Data.Children))
	for _, child := range l.Data.Children {
		if child.Kind != "t1" {
			continue
		}
		var c commentJSON
		if err := json.Unmarshal(child.Data, &c); err != nil {
			return nil, err
		}
		out = append(out, mapComment(c))
	}
	return out, nil
}

// submissions decodes every t3 child of the listing, preserving order.
func (l listing) submissions() ([]model.Submission, error) {
	out := make([]model.Submission, 0, len(l.Data.Children))
	for _, child := range l.Data.Children {
		if child.Kind != "t3" {
			continue
		}
		var s submissionJSON
		if err := json.Unmarshal(child.Data, &s); err != nil {
			return nil, err
		}
		out = append(out, mapSubmission(s))
	}
	return out, nil
}
