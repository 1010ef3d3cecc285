package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/tradeconfirm/internal/domain/port/driven"
)

func TestPushover_Alert(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "app", r.PostForm.Get("token"))
		assert.Equal(t, "user", r.PostForm.Get("user"))
		assert.Equal(t, "gap detected", r.PostForm.Get("message"))
		assert.Equal(t, "Trade Bot", r.PostForm.Get("title"))
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	p := NewPushoverWithHTTPClient(server.Client(), server.URL, "app", "user", "")
	require.NoError(t, p.Alert(context.Background(), "gap detected"))
}

func TestPushover_ServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	p := NewPushoverWithHTTPClient(server.Client(), server.URL, "app", "user", "")
	err := p.Alert(context.Background(), "x")
	assert.True(t, driven.IsTransient(err))
}

type fakeSender struct {
	channel string
	embeds  []*discordgo.MessageEmbed
	err     error
}

func (f *fakeSender) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.channel = channelID
	f.embeds = append(f.embeds, embed)
	return &discordgo.Message{}, f.err
}

func TestDiscord_AlertSendsEmbed(t *testing.T) {
	sender := &fakeSender{}
	d := newDiscord(sender, "chan-1", "r/testsub")

	require.NoError(t, d.Alert(context.Background(), "manual review: c1"))

	assert.Equal(t, "chan-1", sender.channel)
	require.Len(t, sender.embeds, 1)
	assert.Equal(t, "manual review: c1", sender.embeds[0].Description)
	assert.Equal(t, "r/testsub", sender.embeds[0].Footer.Text)
}

type recordingNotifier struct {
	messages []string
	err      error
}

func (r *recordingNotifier) Alert(_ context.Context, message string) error {
	r.messages = append(r.messages, message)
	return r.err
}

func TestMulti_DeliversToAllAndJoinsErrors(t *testing.T) {
	ok := &recordingNotifier{}
	failing := &recordingNotifier{err: errors.New("boom")}

	m := NewMulti(nil, ok, nil, failing)
	err := m.Alert(context.Background(), "hello")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, []string{"hello"}, ok.messages)
	assert.Equal(t, []string{"hello"}, failing.messages)
}
