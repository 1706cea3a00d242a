// Package audit records security events off the request path. Record never
// blocks and never fails its caller; persistence errors are logged and
// counted.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store"
	"github.com/aussiebroadwan/gatekeeper/pkg/clock"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
	"github.com/aussiebroadwan/gatekeeper/pkg/idx"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

// ErrPersistence wraps writer failures in logs. It never reaches callers.
var ErrPersistence = errors.New("audit: persistence failed")

// Config controls buffering. Zero values fall back to defaults.
type Config struct {
	BufferSize   int
	Workers      int
	WriteTimeout time.Duration
}

const (
	DefaultBufferSize   = 1024
	DefaultWorkers      = 2
	DefaultWriteTimeout = 5 * time.Second
)

// Entry is what a caller knows about an event. An empty Principal resolves
// to the request identity, then to "anonymous". An empty Outcome is SUCCESS.
type Entry struct {
	Type        domain.EventType
	Principal   string
	Description string
	Details     string
	Outcome     domain.Outcome
}

// Pipeline enqueues events onto a bounded queue drained by worker goroutines.
type Pipeline struct {
	cfg    Config
	writer store.AuditWriter
	signer *Signer
	clock  clock.Clock
	logger *slog.Logger
	ids    *idx.Generator

	// sendMu orders enqueues against Close: an event is either in ch before
	// closed is set, or counted as dropped.
	sendMu sync.RWMutex
	closed bool

	ch   chan domain.AuditEvent
	done chan struct{}
	wg   sync.WaitGroup

	dropped   atomic.Uint64
	failed    atomic.Uint64
	written   atomic.Uint64
	closeOnce sync.Once
}

// New starts cfg.Workers workers writing to writer.
func New(cfg Config, writer store.AuditWriter, signer *Signer, c clock.Clock, logger *slog.Logger) *Pipeline {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pipeline{
		cfg:    cfg,
		writer: writer,
		signer: signer,
		clock:  clock.OrReal(c),
		logger: logger,
		ids:    idx.NewGenerator(),
		ch:     make(chan domain.AuditEvent, cfg.BufferSize),
		done:   make(chan struct{}),
	}

	for range cfg.Workers {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

// Build turns an entry into a signed event, enriching it from ctx. It is the
// synchronous half of Record.
func (p *Pipeline) Build(ctx context.Context, e Entry) domain.AuditEvent {
	now := p.clock.Now().Truncate(time.Millisecond)

	principal := e.Principal
	if principal == "" {
		if id, ok := httpx.IdentityFromContext(ctx); ok {
			principal = id.Subject
		} else {
			principal = domain.AnonymousPrincipal
		}
	}

	outcome := e.Outcome
	if outcome == "" {
		outcome = domain.OutcomeSuccess
	}

	ev := domain.AuditEvent{
		ID:          p.ids.At(now).String(),
		Type:        e.Type,
		Principal:   principal,
		Description: e.Description,
		Details:     e.Details,
		Timestamp:   now,
		Outcome:     outcome,
	}
	if info, ok := httpx.RequestInfoFromContext(ctx); ok {
		ev.IPAddress = info.IPAddress
		ev.UserAgent = info.UserAgent
		ev.Source = info.Path
	}
	ev.Signature = p.signer.Sign(ev)
	return ev
}

// Record enqueues an event and returns immediately. A full queue drops the
// event with a warning. ctx supplies enrichment only; its cancellation does
// not stop persistence.
func (p *Pipeline) Record(ctx context.Context, e Entry) {
	if p == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ev := p.Build(ctx, e)

	p.sendMu.RLock()
	defer p.sendMu.RUnlock()
	if p.closed {
		p.dropped.Add(1)
		return
	}

	select {
	case p.ch <- ev:
	default:
		n := p.dropped.Add(1)
		slogx.FromContext(ctx).Warn("audit queue full, event dropped",
			slog.String("event_id", ev.ID),
			slog.String("event_type", string(ev.Type)),
			slog.Uint64("dropped_total", n),
		)
	}
}

func (p *Pipeline) run() {
	defer p.wg.Done()

	for {
		select {
		case ev := <-p.ch:
			p.persist(ev)
		case <-p.done:
			for {
				select {
				case ev := <-p.ch:
					p.persist(ev)
				default:
					return
				}
			}
		}
	}
}

func (p *Pipeline) persist(ev domain.AuditEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.WriteTimeout)
	defer cancel()

	if err := p.write(ctx, ev); err != nil {
		p.failed.Add(1)
		p.logger.Error("audit event not persisted",
			slog.String("event_id", ev.ID),
			slog.String("event_type", string(ev.Type)),
			slogx.Err(fmt.Errorf("%w: %w", ErrPersistence, err)),
		)
		return
	}
	p.written.Add(1)
}

// write shields the worker from a panicking writer.
func (p *Pipeline) write(ctx context.Context, ev domain.AuditEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("writer panic: %v", r)
		}
	}()
	if p.writer == nil {
		return errors.New("no writer configured")
	}
	return p.writer.CreateAuditEvent(ctx, ev)
}

// Close stops accepting events, drains the queue and waits for the workers.
func (p *Pipeline) Close() {
	if p == nil {
		return
	}
	p.closeOnce.Do(func() {
		p.sendMu.Lock()
		p.closed = true
		p.sendMu.Unlock()

		close(p.done)
		p.wg.Wait()
	})
}

// Stats is a snapshot of pipeline counters.
type Stats struct {
	Written uint64
	Failed  uint64
	Dropped uint64
	Queued  int
}

func (p *Pipeline) Stats() Stats {
	if p == nil {
		return Stats{}
	}
	return Stats{
		Written: p.written.Load(),
		Failed:  p.failed.Load(),
		Dropped: p.dropped.Load(),
		Queued:  len(p.ch),
	}
}

func (p *Pipeline) Signer() *Signer { return p.signer }
