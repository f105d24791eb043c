package connectivity

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultInterval = 10 * time.Second
	defaultTimeout  = 3 * time.Second
)

// ProbeFunc reports reachability of the backend. A nil error means online.
type ProbeFunc func(ctx context.Context) error

// Event is emitted on every online/offline transition.
type Event struct {
	Online bool
	Err    error
	At     time.Time
}

// Config configures a Monitor.
type Config struct {
	Probe    ProbeFunc
	Interval time.Duration
	Timeout  time.Duration
	// Initial is the state assumed before the first probe.
	Initial bool
	Logger  *zerolog.Logger
}

type refreshRequest struct {
	ctx  context.Context
	done chan bool
}

// Monitor tracks connectivity with periodic and manual probes.
type Monitor struct {
	cfg    Config
	logger zerolog.Logger

	mu      sync.RWMutex
	online  bool
	stopped bool

	events chan Event

	startOnce sync.Once
	stopOnce  sync.Once

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	refreshRequests chan refreshRequest
}

// NewMonitor creates a monitor with config defaults applied.
func NewMonitor(config Config) (*Monitor, error) {
	if config.Probe == nil {
		return nil, errors.New("probe is required")
	}
	if config.Interval <= 0 {
		config.Interval = defaultInterval
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	logger := zerolog.Nop()
	if config.Logger != nil {
		logger = *config.Logger
	}

	return &Monitor{
		cfg:             config,
		logger:          logger.With().Str("component", "connectivity").Logger(),
		online:          config.Initial,
		events:          make(chan Event, 16),
		refreshRequests: make(chan refreshRequest),
	}, nil
}

// Start begins background probing.
func (m *Monitor) Start() {
	m.startOnce.Do(func() {
		m.ctx, m.cancel = context.WithCancel(context.Background())
		m.wg.Add(1)
		go m.loop()
	})
}

// Stop stops probing and closes the event channel.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		if m.cancel != nil {
			m.cancel()
		}
		m.wg.Wait()

		m.mu.Lock()
		m.stopped = true
		close(m.events)
		m.mu.Unlock()
	})
}

// Events delivers state transitions.
func (m *Monitor) Events() <-chan Event {
	return m.events
}

// Online returns the last known state.
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Set records an explicit signal from the host, for example an OS network
// change notification.
func (m *Monitor) Set(online bool) {
	m.update(online, nil)
}

// Refresh runs an immediate probe and returns the resulting state.
func (m *Monitor) Refresh(ctx context.Context) (bool, error) {
	if m.ctx == nil {
		return false, errors.New("connectivity monitor is not started")
	}

	req := refreshRequest{ctx: ctx, done: make(chan bool, 1)}
	select {
	case m.refreshRequests <- req:
	case <-ctx.Done():
		return false, ctx.Err()
	case <-m.ctx.Done():
		return false, errors.New("connectivity monitor is stopped")
	}

	select {
	case online := <-req.done:
		return online, nil
	case <-ctx.Done():
		return false, ctx.Err()
	case <-m.ctx.Done():
		return false, errors.New("connectivity monitor is stopped")
	}
}

func (m *Monitor) loop() {
	defer m.wg.Done()

	m.probe(m.ctx)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.probe(m.ctx)
		case req := <-m.refreshRequests:
			req.done <- m.probe(req.ctx)
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *Monitor) probe(requestCtx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(requestCtx, m.cfg.Timeout)
	defer cancel()

	err := m.cfg.Probe(probeCtx)
	if m.ctx.Err() != nil {
		return m.Online()
	}
	return m.update(err == nil, err)
}

func (m *Monitor) update(online bool, err error) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	changed := m.online != online
	m.online = online
	if !changed {
		return online
	}

	if online {
		m.logger.Info().Msg("backend reachable")
	} else {
		m.logger.Warn().Err(err).Msg("backend unreachable")
	}
	if m.stopped {
		return online
	}

	select {
	case m.events <- Event{Online: online, Err: err, At: time.Now()}:
	default:
		m.logger.Warn().Bool("online", online).Msg("dropping connectivity event, consumer is slow")
	}
	return online
}
