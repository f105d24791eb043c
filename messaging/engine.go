package messaging

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"buchat/cache"
	"buchat/models"
	"buchat/queue"
)

const defaultPageLimit = 50

// Options configures an Engine.
type Options struct {
	Transport Transport

	Cache    *cache.Tiered
	Queue    *queue.Queue
	Seen     SeenLog
	Notifier Notifier
	Metrics  *Metrics
	Logger   *zerolog.Logger

	// MediaBaseURL prefixes uploaded object keys to build public media URLs.
	MediaBaseURL string
	PageLimit    int
	MessagesTTL  time.Duration
	// ConversationsTTL applies to cached conversation lists.
	ConversationsTTL time.Duration

	StartOffline bool
	Clock        func() time.Time
}

// Engine keeps the local view of every open conversation in sync with the
// backend. It is safe for concurrent use.
type Engine struct {
	options   Options
	transport Transport
	cache     *cache.Tiered
	queue     *queue.Queue
	seen      SeenLog
	metrics   *Metrics
	logger    zerolog.Logger
	validate  *validator.Validate
	now       func() time.Time

	online atomic.Bool

	mu            sync.Mutex
	threads       map[string]*thread
	readSent      map[string]bool
	conversations map[string][]models.Conversation

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	asyncMu   sync.Mutex
	closed    bool
	closeOnce sync.Once
}

// New creates an engine with validated configuration. Entries already in the
// queue (for example restored from disk) get queued placeholders.
func New(options Options) (*Engine, error) {
	if options.Transport == nil {
		return nil, errors.New("transport is required")
	}
	logger := zerolog.Nop()
	if options.Logger != nil {
		logger = *options.Logger
	}
	if options.Cache == nil {
		options.Cache = cache.NewTiered(cache.TieredOptions{Logger: &logger})
	}
	if options.Queue == nil {
		options.Queue = queue.New(nil, &logger)
	}
	if options.Seen == nil {
		options.Seen = newMemorySeenLog()
	}
	if options.PageLimit <= 0 {
		options.PageLimit = defaultPageLimit
	}
	if options.MessagesTTL <= 0 {
		options.MessagesTTL = cache.TTLMessages
	}
	if options.ConversationsTTL <= 0 {
		options.ConversationsTTL = cache.TTLConversations
	}
	if options.Clock == nil {
		options.Clock = time.Now
	}
	options.MediaBaseURL = strings.TrimRight(options.MediaBaseURL, "/")

	ctx, cancel := context.WithCancel(context.Background())
	engine := &Engine{
		options:       options,
		transport:     options.Transport,
		cache:         options.Cache,
		queue:         options.Queue,
		seen:          options.Seen,
		metrics:       options.Metrics,
		logger:        logger.With().Str("component", "engine").Logger(),
		validate:      validator.New(),
		now:           options.Clock,
		threads:       make(map[string]*thread),
		readSent:      make(map[string]bool),
		conversations: make(map[string][]models.Conversation),
		ctx:           ctx,
		cancel:        cancel,
	}
	engine.online.Store(!options.StartOffline)

	for _, entry := range engine.queue.Entries() {
		engine.insertPlaceholder(placeholderFor(entry, models.StatusQueued, entry.Options.Media))
	}
	engine.metrics.setQueueDepth(engine.queue.Len())

	return engine, nil
}

// IsOnline reports the current connectivity flag.
func (e *Engine) IsOnline() bool {
	return e.online.Load()
}

// SetOnline updates the connectivity flag. Going from offline to online
// starts a background drain of the offline queue.
func (e *Engine) SetOnline(online bool) {
	was := e.online.Swap(online)
	if online == was {
		return
	}
	e.logger.Info().Bool("online", online).Msg("connectivity changed")
	if online {
		e.goAsync(func(ctx context.Context) {
			e.DrainQueue(ctx)
		})
	}
}

// Messages returns the sorted local view of a conversation.
func (e *Engine) Messages(conversationID string) []models.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.threads[conversationID]
	if !ok {
		return []models.Message{}
	}
	return t.sorted()
}

// Message returns one message from local state.
func (e *Engine) Message(conversationID, messageID string) (models.Message, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.threads[conversationID]
	if !ok {
		return models.Message{}, false
	}
	msg, ok := t.get(messageID)
	if !ok {
		return models.Message{}, false
	}
	return msg.Clone(), true
}

// Conversation summarizes a conversation from local state.
func (e *Engine) Conversation(conversationID, currentUserID string) models.Conversation {
	summary := models.Conversation{ConversationID: conversationID}
	if pair, ok := models.Participants(conversationID); ok {
		summary.Participants = pair
	}

	messages := e.Messages(conversationID)
	if len(messages) == 0 {
		return summary
	}
	last := messages[len(messages)-1]
	summary.LastMessagePreview = last.Preview()
	summary.LastMessageAt = last.CreatedAt
	for _, msg := range messages {
		if msg.SenderID != currentUserID && msg.Status != models.StatusRead && msg.ReadAt == nil {
			summary.UnreadCount++
		}
	}
	return summary
}

// QueueLen returns the number of messages waiting for connectivity.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// Close waits for background sends, receipts and drains, then releases the
// engine. Operations started after Close do not spawn background work.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.asyncMu.Lock()
		e.closed = true
		e.asyncMu.Unlock()

		e.wg.Wait()
		e.cancel()
	})
}

// goAsync runs fn in the background under the engine lifetime. It reports
// false when the engine is closed.
func (e *Engine) goAsync(fn func(ctx context.Context)) bool {
	e.asyncMu.Lock()
	defer e.asyncMu.Unlock()
	if e.closed {
		return false
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn(e.ctx)
	}()
	return true
}

func (e *Engine) threadLocked(conversationID string) *thread {
	t, ok := e.threads[conversationID]
	if !ok {
		t = newThread()
		e.threads[conversationID] = t
	}
	return t
}

func (e *Engine) insertPlaceholder(msg models.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.threadLocked(msg.ConversationID).put(msg)
}

// setStatus moves one local message to next if the transition is allowed.
// The message is re-resolved by ID; a missing message is ignored.
func (e *Engine) setStatus(conversationID, messageID string, next models.Status) (models.Message, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.threads[conversationID]
	if !ok {
		return models.Message{}, false
	}
	msg, ok := t.get(messageID)
	if !ok || !msg.Status.CanTransition(next) {
		return models.Message{}, false
	}
	msg.Status = next
	return msg.Clone(), true
}

func (e *Engine) replacePlaceholder(conversationID, tempID string, confirmed models.Message) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.threadLocked(conversationID).replace(tempID, confirmed)
}

func (e *Engine) hasMessage(conversationID, messageID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.threads[conversationID]
	return ok && t.has(messageID)
}
