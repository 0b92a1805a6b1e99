// Package dispatcher implements the Notification Dispatcher: the one
// component every other notification-pipeline piece feeds into. It runs a
// message through the Rule Evaluator, the Throttle/Quiet-Hours Gate, the
// Template Renderer, and finally a channel Sink, recording the outcome and
// never letting one user's or one channel's failure stall another's.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/atsv3/resilience-core/internal/batch"
	"github.com/atsv3/resilience-core/internal/domain"
	"github.com/atsv3/resilience-core/internal/recorder"
	"github.com/atsv3/resilience-core/internal/repo"
	"github.com/atsv3/resilience-core/internal/rules"
	"github.com/atsv3/resilience-core/internal/sink"
	"github.com/atsv3/resilience-core/internal/telemetry"
	"github.com/atsv3/resilience-core/internal/template"
	"github.com/atsv3/resilience-core/internal/throttle"
)

// RetryPolicy configures how Transient/RateLimited sink failures are
// retried before being recorded as a final failure.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Delay: 5 * time.Second}
}

// Dispatcher owns the worker pool and per-user serialization that turns
// evaluated notifications into sink deliveries.
type Dispatcher struct {
	users    repo.UserRepo
	devices  repo.DeviceRepo
	gate     *throttle.Gate
	scheduler *batch.Scheduler
	recorder *recorder.Recorder
	sinks    map[domain.ChannelKind]sink.Sink
	log      *slog.Logger
	clock    func() time.Time

	// cfgMu guards retry and sinkTimeout, the two knobs UpdateRuntimeConfig
	// can change after construction; the worker pool size cannot be resized
	// once its channel is allocated, so that one stays fixed for the
	// Dispatcher's lifetime.
	cfgMu       sync.RWMutex
	retry       RetryPolicy
	sinkTimeout time.Duration

	// userLocks serializes delivery per user so concurrent messages for the
	// same user never interleave out of order on a single channel, while
	// different users' deliveries proceed fully in parallel.
	userLocks sync.Map // userID -> *sync.Mutex

	workers chan struct{} // bounded worker pool semaphore
}

// Option configures a Dispatcher at construction.
type Option func(*Dispatcher)

func WithRetryPolicy(p RetryPolicy) Option { return func(d *Dispatcher) { d.retry = p } }

func WithSinkTimeout(t time.Duration) Option { return func(d *Dispatcher) { d.sinkTimeout = t } }

func WithWorkerCount(n int) Option {
	return func(d *Dispatcher) {
		if n <= 0 {
			n = runtime.NumCPU()
		}
		d.workers = make(chan struct{}, n)
	}
}

func New(users repo.UserRepo, devices repo.DeviceRepo, gate *throttle.Gate, scheduler *batch.Scheduler, rec *recorder.Recorder, sinks map[domain.ChannelKind]sink.Sink, log *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		users:       users,
		devices:     devices,
		gate:        gate,
		scheduler:   scheduler,
		recorder:    rec,
		sinks:       sinks,
		log:         log,
		clock:       time.Now,
		retry:       DefaultRetryPolicy(),
		sinkTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.workers == nil {
		d.workers = make(chan struct{}, runtime.NumCPU())
	}
	return d
}

// UpdateRuntimeConfig swaps the retry policy and sink timeout used by
// deliveries started after this call; in-flight deliveries keep whatever
// values they already read. Worker pool size is not included since the
// semaphore channel is sized once at construction.
func (d *Dispatcher) UpdateRuntimeConfig(retry RetryPolicy, sinkTimeout time.Duration) {
	d.cfgMu.Lock()
	defer d.cfgMu.Unlock()
	d.retry = retry
	d.sinkTimeout = sinkTimeout
}

func (d *Dispatcher) runtimeConfig() (RetryPolicy, time.Duration) {
	d.cfgMu.RLock()
	defer d.cfgMu.RUnlock()
	return d.retry, d.sinkTimeout
}

func (d *Dispatcher) lockFor(userID string) *sync.Mutex {
	actual, _ := d.userLocks.LoadOrStore(userID, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

// Process is the top-level ingress (C7): it loads every known user profile
// and fans out ProcessUser across them, bounded by the worker pool, so a
// single slow user's sink never delays another's. It blocks until every
// user has been processed.
func (d *Dispatcher) Process(ctx context.Context, msg *domain.NotificationMessage, category string) {
	ctx, span := telemetry.Tracer().Start(ctx, "dispatcher.process")
	defer span.End()
	span.SetAttributes(
		attribute.String("category", category),
		attribute.String("level", msg.Level.String()),
	)

	profiles, err := d.users.LoadAll(ctx)
	if err != nil {
		d.log.Warn("dispatcher: load_all failed", "error", err)
		return
	}

	var wg sync.WaitGroup
	for _, profile := range profiles {
		profile := profile
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.processProfile(ctx, profile, msg, category)
		}()
	}
	wg.Wait()
}

// ProcessUser runs msg through evaluation and delivery for a single user and
// category across every channel the user has enabled. Used directly by
// administrative callers that already know the target user, and by Process
// for its per-user fan-out.
func (d *Dispatcher) ProcessUser(ctx context.Context, userID string, msg *domain.NotificationMessage, category string) {
	profile, ok, err := d.users.Load(ctx, userID)
	if err != nil {
		d.log.Warn("dispatcher: profile load failed", "user_id", userID, "error", err)
		return
	}
	if !ok {
		d.log.Debug("dispatcher: no profile, using defaults", "user_id", userID)
		profile = domain.DefaultUserProfile(userID)
	}
	d.processProfile(ctx, profile, msg, category)
}

// HandlerFor returns a callable of the (NotificationMessage) -> () shape C7
// exposes for plugging the dispatcher into an event bus: every message it
// receives is run through Process under category.
func (d *Dispatcher) HandlerFor(category string) func(*domain.NotificationMessage) {
	return func(msg *domain.NotificationMessage) {
		d.Process(context.Background(), msg, category)
	}
}

// processProfile acquires a worker-pool slot and the per-user lock, then
// evaluates every enabled channel for the already-loaded profile snapshot.
// It may block briefly under load but never indefinitely: callers should
// pass a ctx with a deadline if that matters.
func (d *Dispatcher) processProfile(ctx context.Context, profile domain.UserProfile, msg *domain.NotificationMessage, category string) {
	select {
	case d.workers <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer func() { <-d.workers }()

	lock := d.lockFor(profile.UserID)
	lock.Lock()
	defer lock.Unlock()

	now := d.clock()
	for channel := range profile.ChannelEnabled {
		if !profile.ChannelEnabled[channel] {
			continue
		}
		d.processChannel(ctx, profile, msg, category, channel, now)
	}
}

func (d *Dispatcher) processChannel(ctx context.Context, profile domain.UserProfile, msg *domain.NotificationMessage, category string, channel domain.ChannelKind, now time.Time) {
	outcome := rules.Evaluate(profile, msg, category, channel, now)

	switch outcome.Decision {
	case rules.DecisionDrop:
		d.recordDrop(profile, msg, category, channel, now, outcome.Reason)
		return
	case rules.DecisionBatch:
		d.scheduler.Enqueue(profile.UserID, channel, msg, outcome.Deadline)
		return
	}

	if outcome.Rule != nil {
		verdict := d.gate.Check(profile.UserID, outcome.Rule.RuleID, outcome.Rule.MaxPerHour, outcome.Rule.Cooldown)
		if verdict == throttle.VerdictThrottled {
			d.recordDrop(profile, msg, category, channel, now, "throttled")
			return
		}
	}

	d.deliverNow(ctx, profile, msg, category, channel)
}

// recordDrop writes a DeliveryRecord for a message that never reached a
// Sink, so rule and throttle drops are as observable as a failed send
// (spec.md §4.5, §8 scenario S1/S2).
func (d *Dispatcher) recordDrop(profile domain.UserProfile, msg *domain.NotificationMessage, category string, channel domain.ChannelKind, now time.Time, reason string) {
	d.recorder.Record(domain.DeliveryRecord{
		NotificationID: msg.ID,
		UserID:         profile.UserID,
		Channel:        channel,
		Level:          msg.Level,
		Category:       category,
		ExchangeID:     msg.ExchangeID,
		CreatedAt:      now,
		SentAt:         now,
		Delivered:      false,
		ErrorCode:      reason,
		TitleLength:    len(msg.Title),
		MessageLength:  len(msg.Body),
	})
}

// deliverNow sends a single message to a single channel, retrying
// Transient/RateLimited failures and recording the final outcome.
func (d *Dispatcher) deliverNow(ctx context.Context, profile domain.UserProfile, msg *domain.NotificationMessage, category string, channel domain.ChannelKind) {
	s, ok := d.sinks[channel]
	if !ok {
		d.log.Warn("dispatcher: no sink registered", "channel", channel)
		return
	}

	env := envelopeFor(profile, msg, channel)
	start := d.clock()
	retry, sinkTimeout := d.runtimeConfig()

	var result sink.Result
	made := 0
	for i := 0; i < retry.Attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(retry.Delay):
			}
		}
		sendCtx, cancel := context.WithTimeout(ctx, sinkTimeout)
		result = s.Send(sendCtx, env)
		cancel()
		made++

		if result.Failure.Terminal() || result.Delivered {
			break
		}
	}

	// made is the total number of attempts actually sent, whether the loop
	// ended via a success/terminal-failure break or by exhausting
	// d.retry.Attempts. The attempt that produced this outcome is not
	// itself a "prior" one, so the recorded count is made-1: 0 on a
	// first-try success, d.retry.Attempts-1 when every attempt failed.
	retryCount := made - 1
	if retryCount < 0 {
		retryCount = 0
	}
	d.finish(profile, msg, category, channel, env, result, retryCount, start)
}

func (d *Dispatcher) finish(profile domain.UserProfile, msg *domain.NotificationMessage, category string, channel domain.ChannelKind, env sink.Envelope, result sink.Result, retryCount int, start time.Time) {
	now := d.clock()

	if result.TokenInvalid && env.DeviceID != "" {
		if err := d.devices.Deactivate(context.Background(), profile.UserID, env.DeviceID); err != nil {
			d.log.Warn("dispatcher: failed to deactivate invalid device", "user_id", profile.UserID, "device_id", env.DeviceID, "error", err)
		}
	}

	rec := domain.DeliveryRecord{
		NotificationID: msg.ID,
		UserID:         profile.UserID,
		Channel:        channel,
		Level:          msg.Level,
		Category:       category,
		ExchangeID:     msg.ExchangeID,
		DeviceID:       env.DeviceID,
		Recipient:      env.Recipient,
		CreatedAt:      start,
		// SentAt marks when this delivery attempt was first dispatched, not
		// when it finished; DeliveredAt (below) is set independently at
		// completion so their difference is a real elapsed duration rather
		// than always zero.
		SentAt:        start,
		Delivered:     result.Delivered,
		RetryCount:    retryCount,
		TitleLength:   len(msg.Title),
		MessageLength: len(msg.Body),
	}
	if result.Delivered {
		rec.DeliveredAt = now
		rec.DeliveryLatencyMs = rec.Latency().Milliseconds()
	}
	if result.Error != nil {
		rec.ErrorCode = string(result.Failure)
		rec.ErrorMessage = result.Error.Error()
	}

	d.recorder.Record(rec)

	if !result.Delivered && !errors.Is(result.Error, domain.ErrInvalidRecipient) {
		d.log.Warn("dispatcher: delivery failed", "user_id", profile.UserID, "channel", channel, "error", result.Error)
	}
}

// envelopeFor renders msg's title/body through C3 (substituting metadata
// into any `{{key}}` placeholders) and resolves channel-specific addressing.
func envelopeFor(profile domain.UserProfile, msg *domain.NotificationMessage, channel domain.ChannelKind) sink.Envelope {
	rendered := template.Render(template.Template{Subject: msg.Title, BodyText: msg.Body, BodyHTML: msg.Body}, msg.Metadata)

	env := sink.Envelope{
		NotificationID: msg.ID.String(),
		UserID:         profile.UserID,
		Level:          msg.Level,
		Subject:        rendered.Subject,
		BodyText:       rendered.BodyText,
		BodyHTML:       rendered.BodyHTML,
		Data:           msg.Metadata,
	}
	switch channel {
	case domain.ChannelPush:
		for _, dev := range profile.ActiveDevices() {
			env.DeviceID = dev.DeviceID
			env.Token = dev.Token
			break
		}
	case domain.ChannelEmail:
		env.Recipient = profile.Email
	case domain.ChannelSMS:
		env.Recipient = profile.Phone
	}
	return env
}

// SendDirect bypasses rule evaluation and the throttle gate entirely,
// delivering env straight to channel's sink with a single attempt. It
// writes no DeliveryRecord; the caller gets the sink's Result.
func (d *Dispatcher) SendDirect(ctx context.Context, channel domain.ChannelKind, env sink.Envelope) sink.Result {
	s, ok := d.sinks[channel]
	if !ok {
		return sink.Result{Error: errSinkNotRegistered(channel)}
	}
	_, sinkTimeout := d.runtimeConfig()
	sendCtx, cancel := context.WithTimeout(ctx, sinkTimeout)
	defer cancel()
	return s.Send(sendCtx, env)
}

// DrainBatches is invoked by the batch scheduler's background tick to
// convert due PendingBatches into a rendered digest delivery per channel.
func (d *Dispatcher) DrainBatches(ctx context.Context, batches []*domain.PendingBatch) {
	for _, b := range batches {
		profile, ok, err := d.users.Load(ctx, b.UserID)
		if err != nil {
			d.log.Warn("dispatcher: batch profile load failed", "user_id", b.UserID, "error", err)
			continue
		}
		if !ok {
			profile = domain.DefaultUserProfile(b.UserID)
		}
		d.deliverBatch(ctx, profile, b)
	}
}

func (d *Dispatcher) deliverBatch(ctx context.Context, profile domain.UserProfile, b *domain.PendingBatch) {
	if len(b.Messages) == 0 {
		return
	}

	switch b.Channel {
	case domain.ChannelPush:
		// Push digests are sent individually: a single combined push has no
		// natural "digest" affordance the way an email body does.
		for _, msg := range b.Messages {
			d.deliverNow(ctx, profile, msg, "batch", b.Channel)
		}
	default:
		tmpl := digestTemplate(b.Messages)
		rendered := template.Render(tmpl, nil)
		msg := domain.NewNotificationMessage(domain.Info, rendered.Subject, rendered.BodyText, nil)
		msg.ID = uuid.New()
		d.deliverNow(ctx, profile, msg, "batch", b.Channel)
	}
}

func digestTemplate(messages []*domain.NotificationMessage) template.Template {
	subject := fmt.Sprintf("Digest — %d notifications", len(messages))

	var body strings.Builder
	fmt.Fprintf(&body, "You have %d new notifications:\n\n", len(messages))
	for _, m := range messages {
		fmt.Fprintf(&body, "- %s: %s\n", m.Title, m.Body)
	}
	return template.Template{Subject: subject, BodyText: body.String(), BodyHTML: body.String()}
}

func errSinkNotRegistered(channel domain.ChannelKind) error {
	return fmt.Errorf("dispatcher: no sink registered for channel %s", channel)
}
