package dialog

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/linearity/postbot/core/logger"
	"github.com/linearity/postbot/core/telegram/callbacks"

	tele "gopkg.in/telebot.v4"
)

// Engine starts wizard flows and feeds them incoming updates. One goroutine
// runs per active conversation; the Telegram update pump never blocks on a
// flow.
type Engine struct {
	registry *Registry

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewEngine creates an engine over its own session registry.
func NewEngine() *Engine {
	return &Engine{
		registry: NewRegistry(),
		done:     make(chan struct{}),
	}
}

// Registry exposes the underlying session registry for diagnostics.
func (e *Engine) Registry() *Registry { return e.registry }

// Run is handed to a flow function and provides access to the conversation's
// interaction stream.
type Run struct {
	engine  *Engine
	session *Session
}

// Owner returns the user id that started the flow.
func (r *Run) Owner() int64 { return r.session.Owner() }

// Conversation returns the conversation id the flow is bound to.
func (r *Run) Conversation() int64 { return r.session.conv }

// Wait blocks until the next interaction arrives. The second return value is
// false when the engine is shutting down and the flow must unwind.
func (r *Run) Wait() (Interaction, bool) {
	r.session.mu.Lock()
	inbox := r.session.inbox
	r.session.mu.Unlock()
	if inbox == nil {
		return nil, false
	}
	select {
	case in := <-inbox:
		return in, true
	case <-r.engine.done:
		return nil, false
	}
}

// Start launches a flow for the conversation. It fails when the conversation
// already runs a flow or the engine is shut down.
func (e *Engine) Start(conv, owner int64, flow string, fn func(*Run)) error {
	select {
	case <-e.done:
		return fmt.Errorf("dialog: engine closed")
	default:
	}
	if fn == nil {
		return fmt.Errorf("dialog: nil flow function")
	}

	session := e.registry.Obtain(conv)
	if _, ok := session.begin(owner, flow); !ok {
		return fmt.Errorf("dialog: flow %q already active in conversation %d", session.Flow(), conv)
	}

	logger.Info(logger.Background(), "dialog", "flow.start",
		slog.Int64("chat_id", conv),
		slog.Int64("user_id", owner),
		slog.String("flow", flow),
	)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer session.end()
		defer func() {
			if r := recover(); r != nil {
				logger.Error(logger.Background(), "dialog", "flow.panic",
					slog.Int64("chat_id", conv),
					slog.String("flow", flow),
					slog.Any("err", r),
					slog.String("stack", string(debug.Stack())),
				)
			}
		}()
		fn(&Run{engine: e, session: session})
		logger.Info(logger.Background(), "dialog", "flow.end",
			slog.Int64("chat_id", conv),
			slog.String("flow", flow),
		)
	}()
	return nil
}

// Active reports whether the conversation currently runs a flow.
func (e *Engine) Active(conv int64) bool {
	s, ok := e.registry.Lookup(conv)
	return ok && s.Active()
}

// Resume feeds the update to the conversation's running flow. It reports
// whether an active flow consumed the update.
func (e *Engine) Resume(c tele.Context) bool {
	conv := conversationID(c)
	if conv == 0 {
		return false
	}
	in := interactionFrom(c)
	if in == nil {
		return false
	}
	return e.Inject(conv, in)
}

// Inject delivers an interaction to the conversation's active flow, if any.
func (e *Engine) Inject(conv int64, in Interaction) bool {
	session, ok := e.registry.Lookup(conv)
	if !ok || !session.Active() {
		return false
	}
	return session.deliver(in)
}

// Close stops accepting new flows and unblocks every waiting flow.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		close(e.done)
	})
	e.wg.Wait()
}

func conversationID(c tele.Context) int64 {
	if chat := c.Chat(); chat != nil {
		return chat.ID
	}
	if sender := c.Sender(); sender != nil {
		return sender.ID
	}
	return 0
}

func interactionFrom(c tele.Context) Interaction {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	if cb := c.Callback(); cb != nil {
		key, payload := callbacks.ParseCallbackData(cb)
		if cb.Unique != "" {
			key = cb.Unique
			payload = cb.Data
		}
		return CallbackInput{
			From:    sender.ID,
			Key:     key,
			Payload: payload,
			Raw:     cb.Data,
			ack: func(text string) {
				_ = c.Respond(&tele.CallbackResponse{Text: text})
			},
		}
	}
	if msg := c.Message(); msg != nil && msg.Photo != nil {
		return PhotoInput{From: sender.ID, FileID: msg.Photo.FileID}
	}
	if text := c.Text(); text != "" {
		return TextInput{From: sender.ID, Text: text}
	}
	return nil
}
