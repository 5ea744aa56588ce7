// Package heartbeat logs a periodic liveness marker on a cron schedule. It
// runs beside the intake loop and only reads data fixed at construction.
package heartbeat

import (
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/tinyland-inc/zumo/pkg/logger"
)

type HeartbeatService struct {
	schedule  string
	enabled   bool
	startedAt time.Time
	fields    map[string]any

	mu      sync.Mutex
	stopCh  chan struct{}
	done    chan struct{}
	running bool

	now    func() time.Time
	after  func(time.Duration) <-chan time.Time
	onBeat func(uptime time.Duration)
}

// NewHeartbeatService builds a service; fields are attached to every marker.
func NewHeartbeatService(schedule string, enabled bool, fields map[string]any) *HeartbeatService {
	copied := make(map[string]any, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return &HeartbeatService{
		schedule: schedule,
		enabled:  enabled,
		fields:   copied,
		now:      time.Now,
		after:    time.After,
	}
}

// NextTick returns the first scheduled beat strictly after t.
func (hs *HeartbeatService) NextTick(t time.Time) (time.Time, error) {
	return gronx.NextTickAfter(hs.schedule, t, false)
}

func (hs *HeartbeatService) Start() error {
	if !hs.enabled {
		logger.InfoC("heartbeat", "Heartbeat disabled")
		return nil
	}
	gron := gronx.New()
	if !gron.IsValid(hs.schedule) {
		return fmt.Errorf("heartbeat: invalid schedule %q", hs.schedule)
	}

	hs.mu.Lock()
	defer hs.mu.Unlock()
	if hs.running {
		return nil
	}
	hs.startedAt = hs.now()
	hs.stopCh = make(chan struct{})
	hs.done = make(chan struct{})
	hs.running = true

	go hs.run(hs.stopCh, hs.done)

	logger.InfoCF("heartbeat", "Heartbeat started", map[string]any{"schedule": hs.schedule})
	return nil
}

// Stop is safe to call more than once and waits for the goroutine to exit.
func (hs *HeartbeatService) Stop() {
	hs.mu.Lock()
	if !hs.running {
		hs.mu.Unlock()
		return
	}
	hs.running = false
	close(hs.stopCh)
	done := hs.done
	hs.mu.Unlock()

	<-done
}

func (hs *HeartbeatService) IsRunning() bool {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	return hs.running
}

func (hs *HeartbeatService) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		now := hs.now()
		next, err := hs.NextTick(now)
		if err != nil {
			logger.ErrorCF("heartbeat", "Cannot compute next beat", map[string]any{"error": err.Error()})
			return
		}
		select {
		case <-stop:
			return
		case <-hs.after(next.Sub(now)):
			hs.beat()
		}
	}
}

func (hs *HeartbeatService) beat() {
	uptime := hs.now().Sub(hs.startedAt).Truncate(time.Second)
	fields := map[string]any{"uptime": uptime.String()}
	for k, v := range hs.fields {
		fields[k] = v
	}
	logger.InfoCF("heartbeat", "alive", fields)
	if hs.onBeat != nil {
		hs.onBeat(uptime)
	}
}
