package delivery

import (
	"errors"
	"testing"

	"github.com/linearity/postbot/internal/catalog"
	"github.com/stretchr/testify/assert"

	tele "gopkg.in/telebot.v4"
)

func TestNormalizeTarget(t *testing.T) {
	cases := []struct {
		in   string
		want Target
	}{
		{"-1001234567890", Target("-1001234567890")},
		{"  -100999  ", Target("-100999")},
		{"https://t.me/mychannel", Target("@mychannel")},
		{"http://t.me/mychannel", Target("@mychannel")},
		{"t.me/mychannel/123", Target("@mychannel")},
		{"@mychannel", Target("@mychannel")},
		{"mychannel", Target("@mychannel")},
		{"", Target("")},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizeTarget(tc.in), "input %q", tc.in)
	}
}

func TestTargetRecipient(t *testing.T) {
	assert.Equal(t, "@news", Target("@news").Recipient())
	assert.Equal(t, "-100123", Target("-100123").Recipient())
}

func TestIsChatNotFound(t *testing.T) {
	assert.False(t, IsChatNotFound(nil))
	assert.False(t, IsChatNotFound(errors.New("forbidden")))
	assert.True(t, IsChatNotFound(tele.ErrChatNotFound))
	assert.True(t, IsChatNotFound(errors.New("telegram: Bad Request: chat not found (400)")))
}

func TestButtonsMarkup(t *testing.T) {
	assert.Nil(t, ButtonsMarkup(nil))
	assert.Nil(t, ButtonsMarkup([]catalog.Button{}))

	markup := ButtonsMarkup([]catalog.Button{
		{Text: "Sito", URL: "https://example.com"},
		{Text: "Canale", URL: "https://t.me/example"},
	})
	if assert.NotNil(t, markup) {
		assert.Len(t, markup.InlineKeyboard, 2)
		assert.Len(t, markup.InlineKeyboard[0], 1)
		assert.Equal(t, "Sito", markup.InlineKeyboard[0][0].Text)
		assert.Equal(t, "https://example.com", markup.InlineKeyboard[0][0].URL)
	}
}
