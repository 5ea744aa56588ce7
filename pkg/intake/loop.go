// Package intake runs the poll, dedup, admit, generate and dispatch cycle.
//
// One goroutine owns the loop and the seen store. A failure inside a cycle
// is logged and the loop carries on with the next poll.
package intake

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/tinyland-inc/zumo/pkg/bus"
	"github.com/tinyland-inc/zumo/pkg/channels"
	"github.com/tinyland-inc/zumo/pkg/logger"
	"github.com/tinyland-inc/zumo/pkg/policy"
	"github.com/tinyland-inc/zumo/pkg/seen"
	"github.com/tinyland-inc/zumo/pkg/utils"
)

const DefaultInterval = 5 * time.Second

type Evaluator interface {
	Evaluate(msg bus.InboundMessage) policy.Decision
}

type Generator interface {
	Generate(ctx context.Context, prompt string) string
}

// CycleStats summarizes one poll cycle.
type CycleStats struct {
	CycleID      string
	Fetched      int
	Skipped      int // no id, never deduplicable
	Duplicates   int
	Ignored      int // rejected by the admission policy
	Dispatched   int
	SendFailures int
	FetchFailed  bool
	Panicked     bool
}

type Loop struct {
	channel   channels.Channel
	store     *seen.Store
	policy    Evaluator
	generator Generator
	interval  time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
	onCycle   func(CycleStats)
}

type Option func(*Loop)

func WithInterval(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.interval = d
		}
	}
}

// WithSleep replaces the wait between cycles.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(l *Loop) { l.sleep = fn }
}

// WithCycleHook is called after every cycle, including ones that panicked.
func WithCycleHook(fn func(CycleStats)) Option {
	return func(l *Loop) { l.onCycle = fn }
}

func New(ch channels.Channel, store *seen.Store, p Evaluator, gen Generator, opts ...Option) *Loop {
	l := &Loop{
		channel:   ch,
		store:     store,
		policy:    p,
		generator: gen,
		interval:  DefaultInterval,
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run polls until ctx is canceled. The seen set is persisted on the way out
// regardless of how the loop ends.
func (l *Loop) Run(ctx context.Context) error {
	logger.InfoCF("intake", "Intake loop started", map[string]any{
		"channel":  l.channel.Name(),
		"interval": l.interval.String(),
		"seen":     l.store.Len(),
	})
	defer l.persist("shutdown")

	for {
		stats := l.safeCycle(ctx)
		if l.onCycle != nil {
			l.onCycle(stats)
		}
		if ctx.Err() != nil {
			break
		}
		if err := l.sleep(ctx, l.interval); err != nil {
			break
		}
	}

	logger.InfoC("intake", "Intake loop stopped")
	return nil
}

func (l *Loop) safeCycle(ctx context.Context) (stats CycleStats) {
	defer func() {
		if rec := recover(); rec != nil {
			stats.Panicked = true
			logger.ErrorCF("intake", "Cycle panicked, continuing", map[string]any{
				"cycle": stats.CycleID,
				"panic": fmt.Sprint(rec),
				"stack": string(debug.Stack()),
			})
			l.persist("recovered panic")
		}
	}()
	return l.RunOnce(ctx)
}

// RunOnce performs a single fetch and handles every new message in it.
func (l *Loop) RunOnce(ctx context.Context) CycleStats {
	stats := CycleStats{CycleID: uuid.NewString()}

	msgs, err := l.channel.Poll(ctx)
	if err != nil {
		stats.FetchFailed = true
		if !errors.Is(err, context.Canceled) {
			logger.WarnCF("intake", "Fetch failed, treating as empty", map[string]any{
				"cycle": stats.CycleID,
				"error": err.Error(),
			})
		}
		return stats
	}
	stats.Fetched = len(msgs)

	for _, msg := range msgs {
		if ctx.Err() != nil {
			break
		}
		l.handle(ctx, msg, &stats)
	}

	if stats.Dispatched > 0 || stats.Ignored > 0 || stats.SendFailures > 0 {
		logger.InfoCF("intake", "Cycle complete", map[string]any{
			"cycle":         stats.CycleID,
			"fetched":       stats.Fetched,
			"duplicates":    stats.Duplicates,
			"ignored":       stats.Ignored,
			"dispatched":    stats.Dispatched,
			"send_failures": stats.SendFailures,
		})
	}
	return stats
}

func (l *Loop) handle(ctx context.Context, msg bus.InboundMessage, stats *CycleStats) {
	if msg.MessageID == "" {
		stats.Skipped++
		logger.DebugCF("intake", "Skipping message without id", map[string]any{
			"cycle":   stats.CycleID,
			"chat_id": msg.ChatID,
		})
		return
	}
	if l.store.Contains(msg.MessageID) {
		stats.Duplicates++
		return
	}

	// Marked before evaluation so the id is never evaluated twice.
	l.store.Add(msg.MessageID)
	if l.store.ShouldPersist() {
		l.persist("periodic")
	}

	decision := l.policy.Evaluate(msg)
	fields := map[string]any{
		"cycle":      stats.CycleID,
		"message_id": msg.MessageID,
		"chat_id":    msg.ChatID,
		"sender_id":  msg.SenderID,
		"group":      msg.IsGroup(),
		"reason":     string(decision.Reason),
	}
	if !decision.Respond {
		stats.Ignored++
		logger.DebugCF("intake", "Message ignored", fields)
		return
	}

	fields["privileged"] = decision.Privileged
	fields["preview"] = utils.Truncate(utils.SingleLine(msg.Content), 50)
	logger.InfoCF("intake", "Message admitted", fields)

	// An admitted id reaches disk before anything is sent, so a hard crash
	// during generation or delivery never produces a second reply.
	if l.store.Pending() > 0 {
		l.persist("admitted")
	}

	reply := l.generator.Generate(ctx, msg.Content)
	out := bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: reply,
		ReplyTo: msg.MessageID,
	}
	if err := l.channel.Send(ctx, out); err != nil {
		stats.SendFailures++
		logger.ErrorCF("intake", "Reply delivery failed", map[string]any{
			"cycle":      stats.CycleID,
			"message_id": msg.MessageID,
			"chat_id":    msg.ChatID,
			"error":      err.Error(),
		})
		return
	}
	stats.Dispatched++
}

func (l *Loop) persist(trigger string) {
	if err := l.store.Persist(); err != nil {
		logger.ErrorCF("intake", "Seen set persist failed; in-memory set stays authoritative", map[string]any{
			"trigger": trigger,
			"path":    l.store.Path(),
			"error":   err.Error(),
		})
		return
	}
	logger.DebugCF("intake", "Seen set persisted", map[string]any{
		"trigger": trigger,
		"count":   l.store.Len(),
	})
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
