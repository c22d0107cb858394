// Package records holds the domain records kept through the versioned
// engine: the message board, its per-client cooldown and the visitor
// counters.
package records

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"cms-go/internal/cms"
	"cms-go/internal/versioned"
)

// Logical keys of the domain records.
const (
	MessagesKey      = "messages"
	MessageLimitsKey = "messageLimits"
	VisitorsKey      = "visitors"
)

// ErrInvalidMessage is wrapped by every input validation failure of Post.
var ErrInvalidMessage = errors.New("invalid message")

// Message is one board entry.
type Message struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// MessageLimits maps a client identifier to the time of its last post.
type MessageLimits map[string]time.Time

// CooldownError is returned by Post when the client posted too recently.
type CooldownError struct {
	RetryAfter time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("posting too often, retry in %s", e.RetryAfter.Round(time.Second))
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, at least one.
func (e *CooldownError) RetryAfterSeconds() int {
	s := int(math.Ceil(e.RetryAfter.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

// BoardConfig bounds the message board.
type BoardConfig struct {
	MaxMessages   int
	Cooldown      time.Duration
	MaxNameLength int
	MaxTextLength int
}

// Board posts and lists messages.
type Board struct {
	engine   *versioned.Engine
	clock    cms.Clock
	ids      cms.IDGenerator
	logger   cms.Logger
	cfg      BoardConfig
	validate *validator.Validate
}

// NewBoard creates a Board writing through engine.
func NewBoard(engine *versioned.Engine, clock cms.Clock, ids cms.IDGenerator, logger cms.Logger, cfg BoardConfig) *Board {
	return &Board{
		engine:   engine,
		clock:    clock,
		ids:      ids,
		logger:   logger,
		cfg:      cfg,
		validate: validator.New(),
	}
}

// Post validates the input, reserves the client's cooldown slot and then
// prepends the message to the board. A reserved slot is kept even if the
// message write fails afterwards.
func (b *Board) Post(ctx context.Context, clientID, name, text string) (Message, error) {
	name = strings.TrimSpace(name)
	text = strings.TrimSpace(text)
	if err := b.check(name, text); err != nil {
		return Message{}, err
	}

	now := b.clock.Now().UTC()
	if err := b.reserve(ctx, clientID, now); err != nil {
		return Message{}, err
	}

	msg := Message{
		ID:        b.ids.New(),
		Name:      name,
		Text:      text,
		CreatedAt: now,
	}
	_, err := versioned.Update(ctx, b.engine, MessagesKey, func(current *[]Message) ([]Message, error) {
		var existing []Message
		if current != nil {
			existing = *current
		}
		next := make([]Message, 0, len(existing)+1)
		next = append(next, msg)
		next = append(next, existing...)
		if b.cfg.MaxMessages > 0 && len(next) > b.cfg.MaxMessages {
			next = next[:b.cfg.MaxMessages]
		}
		return next, nil
	})
	if err != nil {
		return Message{}, fmt.Errorf("storing message: %w", err)
	}

	b.logger.Info("message posted", "id", msg.ID, "client", clientID)
	return msg, nil
}

func (b *Board) check(name, text string) error {
	if err := b.validate.Var(name, fmt.Sprintf("required,max=%d", b.cfg.MaxNameLength)); err != nil {
		return fmt.Errorf("%w: name must be 1 to %d characters", ErrInvalidMessage, b.cfg.MaxNameLength)
	}
	if err := b.validate.Var(text, fmt.Sprintf("required,max=%d", b.cfg.MaxTextLength)); err != nil {
		return fmt.Errorf("%w: text must be 1 to %d characters", ErrInvalidMessage, b.cfg.MaxTextLength)
	}
	return nil
}

// reserve records now as the client's last post unless the previous post
// is younger than the cooldown. Expired entries are dropped on the way.
func (b *Board) reserve(ctx context.Context, clientID string, now time.Time) error {
	_, err := versioned.Update(ctx, b.engine, MessageLimitsKey, func(current *MessageLimits) (MessageLimits, error) {
		next := MessageLimits{}
		if current != nil {
			for id, last := range *current {
				if now.Sub(last) < b.cfg.Cooldown {
					next[id] = last
				}
			}
		}
		if last, ok := next[clientID]; ok {
			return nil, &CooldownError{RetryAfter: last.Add(b.cfg.Cooldown).Sub(now)}
		}
		next[clientID] = now
		return next, nil
	})
	return err
}

// List returns the messages, newest first.
func (b *Board) List(ctx context.Context) ([]Message, error) {
	rec, err := versioned.Get[[]Message](ctx, b.engine, MessagesKey)
	if errors.Is(err, cms.ErrNotFound) {
		return []Message{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}
	if rec.Data == nil {
		return []Message{}, nil
	}
	return rec.Data, nil
}
