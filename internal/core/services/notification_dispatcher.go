package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hostpanel/backend/internal/core/ports"
	"github.com/hostpanel/backend/internal/domain"
	"github.com/hostpanel/backend/internal/infrastructure/logger"
	"github.com/sony/gobreaker"
)

type NotificationDispatcherConfig struct {
	Channels       []ports.NotificationChannel
	Logger         *logger.Logger
	// Timeout bounds each channel send independently.
	Timeout        time.Duration
	// BreakerTimeout is how long a tripped channel stays open.
	BreakerTimeout time.Duration
}

type channelSlot struct {
	channel ports.NotificationChannel
	breaker *gobreaker.CircuitBreaker
}

// NotificationDispatcher fans an alert out to every channel concurrently.
// One failing channel never holds up the others.
type NotificationDispatcher struct {
	slots   []channelSlot
	timeout time.Duration
	logger  *logger.Logger
}

var _ ports.AlertDispatcher = (*NotificationDispatcher)(nil)

func NewNotificationDispatcher(cfg NotificationDispatcherConfig) *NotificationDispatcher {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = time.Minute
	}
	log := cfg.Logger.Named("notify")

	slots := make([]channelSlot, 0, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		slots = append(slots, channelSlot{
			channel: ch,
			breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
				Name:        ch.Name(),
				MaxRequests: 1,
				Interval:    10 * time.Minute,
				Timeout:     cfg.BreakerTimeout,
				ReadyToTrip: func(counts gobreaker.Counts) bool {
					return counts.ConsecutiveFailures >= 5
				},
				OnStateChange: func(name string, from, to gobreaker.State) {
					log.Warnw("notify_breaker_state_changed", "channel", name, "from", from.String(), "to", to.String())
				},
			}),
		})
	}

	return &NotificationDispatcher{slots: slots, timeout: cfg.Timeout, logger: log}
}

func (d *NotificationDispatcher) Channels() []string {
	names := make([]string, len(d.slots))
	for i, s := range d.slots {
		names[i] = s.channel.Name()
	}
	return names
}

// Dispatch returns one outcome per channel in registration order. Channel
// errors are reported in the outcomes and never returned.
func (d *NotificationDispatcher) Dispatch(ctx context.Context, alert domain.Alert) []ports.ChannelOutcome {
	outcomes := make([]ports.ChannelOutcome, len(d.slots))

	var wg sync.WaitGroup
	for i, slot := range d.slots {
		i, slot := i, slot
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i] = d.send(ctx, slot, alert)
		}()
	}
	wg.Wait()
	return outcomes
}

func (d *NotificationDispatcher) send(ctx context.Context, slot channelSlot, alert domain.Alert) (outcome ports.ChannelOutcome) {
	name := slot.channel.Name()
	started := time.Now()
	outcome.Channel = name

	defer func() {
		outcome.Duration = time.Since(started)
		if outcome.Err != nil {
			outcome.Error = outcome.Err.Error()
			d.logger.Errorw("notify_channel_failed", "channel", name, "dedup_key", alert.DedupKey, "error", outcome.Err)
			return
		}
		d.logger.Infow("notify_channel_sent", "channel", name, "dedup_key", alert.DedupKey, "duration", outcome.Duration)
	}()

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	_, err := slot.breaker.Execute(func() (interface{}, error) {
		return nil, sendWithDeadline(sendCtx, slot.channel, alert)
	})
	if err != nil {
		outcome.Err = &ChannelError{Channel: name, Err: err}
	}
	return outcome
}

// sendWithDeadline stops waiting once ctx is done even if the channel
// ignores its context.
func sendWithDeadline(ctx context.Context, ch ports.NotificationChannel, alert domain.Alert) error {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- ch.Send(ctx, alert)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
