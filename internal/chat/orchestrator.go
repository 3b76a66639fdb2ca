package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"parlor/internal/llm"
	"parlor/internal/store"
)

// Sentinel errors surfaced by SendTurn.
var (
	// ErrConversationBusy is returned when a turn is already in flight for
	// the conversation. Callers may retry after backoff.
	ErrConversationBusy = errors.New("conversation busy")
	// ErrUnknownModel is returned when a conversation references a model
	// configuration that is not registered.
	ErrUnknownModel = errors.New("unknown model configuration")
	// ErrEmptyMessage is returned when the user text is blank.
	ErrEmptyMessage = errors.New("empty message")
)

// Store is the persistence surface the orchestrator needs.
type Store interface {
	GetConversation(ctx context.Context, ownerID int64, id string) (*store.Conversation, error)
	AppendTurn(ctx context.Context, id, userContent, assistantContent string, newTokenCount int64) (*store.Conversation, error)
	UpdateTitle(ctx context.Context, ownerID int64, id, title string) error
}

// Gateway resolves model configurations and dispatches completion calls.
type Gateway interface {
	Model(id string) (llm.ModelConfig, bool)
	Complete(ctx context.Context, modelID string, messages []llm.Message) (*llm.Completion, error)
}

// Titler produces a short conversation title from an initial exchange.
type Titler interface {
	Summarize(ctx context.Context, history []llm.Message) (string, error)
}

// Notifier pushes asynchronous conversation updates to connected clients.
type Notifier interface {
	NotifyTitle(conversationID, title string)
}

// TurnResult is what one accepted turn returns to the caller.
type TurnResult struct {
	AssistantText string
	Title         string
	TokenCount    int64
}

// Options tunes orchestrator timing.
type Options struct {
	// TurnTimeout bounds the whole turn including one retry. Zero means
	// a 2 minute default.
	TurnTimeout time.Duration
	// RetryBaseDelay is the backoff before the single retry of a transient
	// gateway failure. Zero means 500ms.
	RetryBaseDelay time.Duration
}

// Orchestrator drives one chat turn end to end: load history, assemble
// context, call the gateway, persist the exchange, account tokens and kick
// off title summarization. At most one turn per conversation is in flight.
type Orchestrator struct {
	store      Store
	gateway    Gateway
	summarizer Titler
	notifier   Notifier // optional

	turnTimeout time.Duration
	retryDelay  time.Duration

	mu       sync.Mutex
	inflight map[string]struct{}

	// titleJobs tracks detached summarizer goroutines so Shutdown can
	// drain them.
	titleJobs sync.WaitGroup

	logger zerolog.Logger
}

// NewOrchestrator wires the turn pipeline. notifier may be nil.
func NewOrchestrator(st Store, gw Gateway, summarizer Titler, notifier Notifier, opts Options, logger zerolog.Logger) *Orchestrator {
	if opts.TurnTimeout <= 0 {
		opts.TurnTimeout = 2 * time.Minute
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = 500 * time.Millisecond
	}
	return &Orchestrator{
		store:       st,
		gateway:     gw,
		summarizer:  summarizer,
		notifier:    notifier,
		turnTimeout: opts.TurnTimeout,
		retryDelay:  opts.RetryBaseDelay,
		inflight:    make(map[string]struct{}),
		logger:      logger.With().Str("component", "orchestrator").Logger(),
	}
}

// SendTurn processes one user turn against a conversation. On success the
// user and assistant messages are persisted atomically with the updated
// token count; on any failure nothing is written. A second turn submitted
// while one is in flight is rejected with ErrConversationBusy. A non-zero
// ownerID scopes the conversation load, so a foreign conversation reads as
// missing; 0 skips the check for single-user installs.
func (o *Orchestrator) SendTurn(ctx context.Context, ownerID int64, conversationID, userText string) (*TurnResult, error) {
	userText = strings.TrimSpace(userText)
	if userText == "" {
		return nil, ErrEmptyMessage
	}

	if !o.acquire(conversationID) {
		return nil, errors.Wrapf(ErrConversationBusy, "conversation %s", conversationID)
	}
	defer o.release(conversationID)

	conv, err := o.store.GetConversation(ctx, ownerID, conversationID)
	if err != nil {
		return nil, err
	}

	model, ok := o.gateway.Model(conv.Model)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownModel, "%s", conv.Model)
	}

	assembled := AssembleContext(model, conv.Messages, userText)

	// The gateway call and persistence run under a detached, deadline-only
	// context: a caller disconnect mid-turn must not abandon a completed
	// exchange (durability over responsiveness).
	turnCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.turnTimeout)
	defer cancel()

	completion, err := o.complete(turnCtx, conv.Model, assembled)
	if err != nil {
		o.logger.Warn().
			Str("conversation_id", conversationID).
			Str("model", conv.Model).
			Err(err).
			Msg("turn failed at gateway")
		return nil, err
	}

	usage := completion.Usage
	if usage.IsZero() {
		usage = EstimateUsage(assembled, completion.Content)
	}
	newCount := Accumulate(conv.TokenCount, usage)

	updated, err := o.store.AppendTurn(turnCtx, conversationID, userText, completion.Content, newCount)
	if err != nil {
		return nil, errors.Wrap(err, "failed to persist turn")
	}

	o.logger.Info().
		Str("conversation_id", conversationID).
		Str("model", conv.Model).
		Int("context_messages", len(assembled)).
		Int64("token_count", updated.TokenCount).
		Bool("usage_estimated", usage.Estimated).
		Msg("turn completed")

	// First accepted turn of a still-untitled conversation kicks off
	// summarization off the critical path. A failure there keeps the
	// placeholder; the next turn tries again.
	if o.summarizer != nil && updated.Title == store.DefaultTitle {
		first := assembled
		reply := completion.Content
		o.titleJobs.Add(1)
		go func() {
			defer o.titleJobs.Done()
			o.retitle(conversationID, first, reply)
		}()
	}

	return &TurnResult{
		AssistantText: completion.Content,
		Title:         updated.Title,
		TokenCount:    updated.TokenCount,
	}, nil
}

// complete calls the gateway, retrying once with backoff on transient
// failures. Rejections are surfaced immediately.
func (o *Orchestrator) complete(ctx context.Context, modelID string, messages []llm.Message) (*llm.Completion, error) {
	completion, err := o.gateway.Complete(ctx, modelID, messages)
	if err == nil || !llm.IsRetryable(err) {
		return completion, err
	}

	delay := o.retryDelay
	if delay > 2*time.Second {
		delay = 2 * time.Second
	}
	o.logger.Debug().Str("model", modelID).Dur("delay", delay).Msg("retrying transient gateway failure")

	select {
	case <-ctx.Done():
		return nil, err
	case <-time.After(delay):
	}

	return o.gateway.Complete(ctx, modelID, messages)
}

// retitle runs the summarizer for a conversation whose title is still the
// placeholder and stores the result in its own transaction. Never fails
// the turn that triggered it.
func (o *Orchestrator) retitle(conversationID string, assembled []llm.Message, reply string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	history := append(append([]llm.Message{}, assembled...), llm.Message{Role: llm.RoleAssistant, Content: reply})
	title, err := o.summarizer.Summarize(ctx, history)
	if err != nil {
		o.logger.Warn().Str("conversation_id", conversationID).Err(err).Msg("title summarization failed, keeping placeholder")
		return
	}

	if err := o.store.UpdateTitle(ctx, 0, conversationID, title); err != nil {
		o.logger.Warn().Str("conversation_id", conversationID).Err(err).Msg("failed to store generated title")
		return
	}

	o.logger.Info().Str("conversation_id", conversationID).Str("title", title).Msg("conversation titled")
	if o.notifier != nil {
		o.notifier.NotifyTitle(conversationID, title)
	}
}

// Shutdown waits for detached title jobs to finish, up to the context
// deadline.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.titleJobs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) acquire(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inflight[id]; busy {
		return false
	}
	o.inflight[id] = struct{}{}
	return true
}

func (o *Orchestrator) release(id string) {
	o.mu.Lock()
	delete(o.inflight, id)
	o.mu.Unlock()
}
