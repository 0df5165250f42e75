package greet

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tele "gopkg.in/telebot.v4"
)

type fakeAPI struct {
	role      tele.MemberStatus
	memberErr error
	link      string
	linkErr   error
	commands  []tele.Command

	approved     []int64
	declined     []int64
	sentToChat   []string
	createdLinks []*tele.ChatInviteLink
}

func (f *fakeAPI) ChatMemberOf(_, _ tele.Recipient) (*tele.ChatMember, error) {
	if f.memberErr != nil {
		return nil, f.memberErr
	}
	return &tele.ChatMember{Role: f.role}, nil
}

func (f *fakeAPI) CreateInviteLink(_ tele.Recipient, link *tele.ChatInviteLink) (*tele.ChatInviteLink, error) {
	if f.linkErr != nil {
		return nil, f.linkErr
	}
	f.createdLinks = append(f.createdLinks, link)
	return &tele.ChatInviteLink{InviteLink: f.link}, nil
}

func (f *fakeAPI) Commands(_ ...any) ([]tele.Command, error) {
	return f.commands, nil
}

func (f *fakeAPI) ApproveJoinRequest(_ tele.Recipient, user *tele.User) error {
	f.approved = append(f.approved, user.ID)
	return nil
}

func (f *fakeAPI) DeclineJoinRequest(_ tele.Recipient, user *tele.User) error {
	f.declined = append(f.declined, user.ID)
	return nil
}

func (f *fakeAPI) Send(_ tele.Recipient, what any, _ ...any) (*tele.Message, error) {
	if text, ok := what.(string); ok {
		f.sentToChat = append(f.sentToChat, text)
	}
	return &tele.Message{}, nil
}

// startCtx fakes the slice of tele.Context the start handler touches.
type startCtx struct {
	tele.Context
	sender  *tele.User
	sent    []string
	markups []*tele.ReplyMarkup
}

func (c *startCtx) Sender() *tele.User { return c.sender }

func (c *startCtx) Send(what any, opts ...any) error {
	if text, ok := what.(string); ok {
		c.sent = append(c.sent, text)
	}
	for _, opt := range opts {
		if m, ok := opt.(*tele.ReplyMarkup); ok {
			c.markups = append(c.markups, m)
		}
	}
	return nil
}

type joinCtx struct {
	tele.Context
	update tele.Update
}

func (c *joinCtx) Update() tele.Update { return c.update }

func TestLimiterFixedWindow(t *testing.T) {
	now := time.Now()
	l := newLimiter(5*time.Second, 5)
	l.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow("k"), "event %d should pass", i+1)
	}
	assert.False(t, l.Allow("k"))
	assert.True(t, l.Allow("other"), "keys are isolated")

	now = now.Add(6 * time.Second)
	assert.True(t, l.Allow("k"), "window expiry resets the counter")
}

func TestSeenSetPersists(t *testing.T) {
	dir := t.TempDir()

	s := LoadSeen(dir)
	assert.False(t, s.Has(42))
	require.NoError(t, s.Mark(42))
	assert.True(t, s.Has(42))

	reloaded := LoadSeen(dir)
	assert.True(t, reloaded.Has(42))
	assert.False(t, reloaded.Has(7))
}

func TestSeenSetDegradesOnCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, seenFile), []byte("{nope"), 0o644))
	s := LoadSeen(dir)
	assert.False(t, s.Has(1))
	require.NoError(t, s.Mark(1))
	assert.True(t, LoadSeen(dir).Has(1))
}

func TestReadStartConfig(t *testing.T) {
	dir := t.TempDir()

	_, ok := ReadStartConfig(dir)
	assert.False(t, ok)

	payload := `{"message":"Benvenuto nel canale","buttons":[{"text":"Sito","url":"https://example.com"}]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, startConfigFile), []byte(payload), 0o644))

	cfg, ok := ReadStartConfig(dir)
	require.True(t, ok)
	assert.Equal(t, "Benvenuto nel canale", cfg.Message)
	require.Len(t, cfg.Buttons, 1)
	assert.Equal(t, "Sito", cfg.Buttons[0].Text)
}

func TestSanitizeText(t *testing.T) {
	assert.Equal(t, "ab\ncd", sanitizeText("a\x00b\ncd\x07", 100))
	assert.Equal(t, "abc", sanitizeText("abcdef", 3))
	assert.Equal(t, "tab\tkept", sanitizeText("tab\tkept", 100))
}

func TestStartFirstContactNonMember(t *testing.T) {
	api := &fakeAPI{role: tele.Left, link: "https://t.me/+abc"}
	g := New(api, -100555, t.TempDir())

	c := &startCtx{sender: &tele.User{ID: 42, FirstName: "Ada"}}
	require.NoError(t, g.Start(c))

	require.Len(t, c.sent, 1)
	assert.Contains(t, c.sent[0], "Ciao Ada")
	require.Len(t, c.markups, 1, "invite button attached")
	require.Len(t, api.createdLinks, 1)
	assert.False(t, api.createdLinks[0].JoinRequest)

	assert.True(t, g.seen.Has(42))
}

func TestStartFirstContactMemberGetsCommandList(t *testing.T) {
	api := &fakeAPI{
		role:     tele.Member,
		commands: []tele.Command{{Text: "help", Description: "Aiuto"}},
	}
	g := New(api, -100555, t.TempDir())

	c := &startCtx{sender: &tele.User{ID: 42, FirstName: "Ada"}}
	require.NoError(t, g.Start(c))

	require.Len(t, c.sent, 1)
	assert.Contains(t, c.sent[0], "/help - Aiuto")
	assert.True(t, g.seen.Has(42))
	assert.Empty(t, api.createdLinks)
}

func TestStartReturningUserGetsConfiguredWelcome(t *testing.T) {
	dir := t.TempDir()
	payload := `{"message":"Eccoti di nuovo","buttons":[{"text":"Sito","url":"https://example.com"}]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, startConfigFile), []byte(payload), 0o644))

	api := &fakeAPI{}
	g := New(api, -100555, dir)
	require.NoError(t, g.seen.Mark(42))

	c := &startCtx{sender: &tele.User{ID: 42, FirstName: "Ada"}}
	require.NoError(t, g.Start(c))

	require.Len(t, c.sent, 1)
	assert.Equal(t, "Eccoti di nuovo", c.sent[0])
	require.Len(t, c.markups, 1)
}

func TestJoinRequestApprovalAndRateLimit(t *testing.T) {
	api := &fakeAPI{}
	g := New(api, -100555, t.TempDir())

	mkCtx := func(userID int64) *joinCtx {
		return &joinCtx{update: tele.Update{ChatJoinRequest: &tele.ChatJoinRequest{
			Chat:   &tele.Chat{ID: -100555},
			Sender: &tele.User{ID: userID, FirstName: fmt.Sprintf("U%d", userID)},
		}}}
	}

	for i := 0; i < 6; i++ {
		require.NoError(t, g.JoinRequest(mkCtx(7)))
	}
	assert.Len(t, api.approved, 5)
	assert.Len(t, api.declined, 1)
	assert.Len(t, api.sentToChat, 5, "welcome follows each approval")

	require.NoError(t, g.JoinRequest(mkCtx(8)))
	assert.Len(t, api.approved, 6, "other users keep their own window")
}

func TestJoinRequestIgnoresEmptyUpdate(t *testing.T) {
	g := New(&fakeAPI{}, -100555, t.TempDir())
	require.NoError(t, g.JoinRequest(&joinCtx{update: tele.Update{}}))
}

func TestMembershipProbeFailureTreatedAsNonMember(t *testing.T) {
	api := &fakeAPI{memberErr: errors.New("boom"), link: "https://t.me/+abc"}
	g := New(api, -100555, t.TempDir())

	c := &startCtx{sender: &tele.User{ID: 42, FirstName: "Ada"}}
	require.NoError(t, g.Start(c))
	require.Len(t, c.sent, 1)
	assert.Contains(t, c.sent[0], "benvenuto")
}
