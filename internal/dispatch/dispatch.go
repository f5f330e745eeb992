package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"praetor/internal/detect"
	"praetor/internal/policy"
)

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Target identifies what a verdict is applied to. MessageID is empty for
// non-message events; AdminKind/AdminTargetID are set for audit-style
// events so revert knows what to undo.
type Target struct {
	GuildID       string
	ChannelID     string
	MessageID     string
	UserID        string
	AdminKind     detect.AdminKind
	AdminTargetID string
}

// Dispatcher turns verdicts into idempotent moderation actions. Every
// branch reports handled=true back to the pipeline; only genuinely
// unexpected faults are logged, and nothing propagates to the caller.
type Dispatcher struct {
	platform Platform
	sink     Sink
	ledger   Ledger
	locker   Locker
	logger   *zap.Logger
	clock    Clock

	mu       sync.Mutex
	inflight map[string]struct{}
}

func New(platform Platform, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		platform: platform,
		logger:   logger,
		clock:    realClock{},
		inflight: make(map[string]struct{}),
	}
}

func (d *Dispatcher) WithSink(sink Sink) *Dispatcher       { d.sink = sink; return d }
func (d *Dispatcher) WithLedger(ledger Ledger) *Dispatcher { d.ledger = ledger; return d }
func (d *Dispatcher) WithLocker(locker Locker) *Dispatcher { d.locker = locker; return d }
func (d *Dispatcher) WithClock(clock Clock)                { d.clock = clock }

// Apply executes the sanction for a verdict. The return value tells the
// pipeline whether to stop propagating the event; it is true on success,
// partial success and total failure alike, so downstream handling never
// double-sanctions an already-claimed event.
func (d *Dispatcher) Apply(ctx context.Context, t Target, v detect.Verdict) bool {
	if !v.Violation() {
		return false
	}

	key := t.GuildID + "|" + t.UserID + "|" + string(v.Policy)
	if !d.claim(key) {
		// Another in-flight evaluation is already sanctioning this
		// offender for the same policy.
		return true
	}
	defer d.release(key)

	d.removeContent(ctx, t, v)
	applied := d.applyActorAction(ctx, t, v)
	d.notify(ctx, t, v, applied)

	if d.sink != nil && detect.Severe(v.Policy) {
		d.sink.Emit(ctx, Record{
			ID:        uuid.NewString(),
			Title:     fmt.Sprintf("%s triggered", v.Policy),
			GuildID:   t.GuildID,
			ActorID:   t.UserID,
			ChannelID: t.ChannelID,
			Reason:    v.Reason,
			At:        d.clock.Now(),
		})
	}
	if d.ledger != nil {
		if err := d.ledger.RecordSanction(ctx, uuid.NewString(), t.GuildID, t.UserID, string(v.Policy), string(v.Action), v.Reason); err != nil {
			d.logger.Warn("sanction ledger write failed", zap.Error(err))
		}
	}
	return true
}

func (d *Dispatcher) removeContent(ctx context.Context, t Target, v detect.Verdict) {
	if t.MessageID != "" {
		err := d.platform.DeleteMessage(ctx, t.ChannelID, t.MessageID)
		d.tolerate(err, "delete message", t)
	}
	if v.Sweep {
		d.sweep(ctx, t, v)
	}
}

// sweep deletes the offender's recent qualifying messages: bulk first,
// one-by-one when bulk is refused.
func (d *Dispatcher) sweep(ctx context.Context, t Target, v detect.Verdict) {
	messages, err := d.platform.RecentMessages(ctx, t.ChannelID, 100)
	if err != nil {
		d.tolerate(err, "fetch recent messages", t)
		return
	}
	cutoff := d.clock.Now().Add(-v.SweepWindow)
	var ids []string
	for _, msg := range messages {
		if msg.AuthorID != t.UserID || msg.Pinned || msg.ID == t.MessageID {
			continue
		}
		if msg.CreatedAt.Before(cutoff) {
			continue
		}
		if v.SweepContent != "" && strings.TrimSpace(msg.Content) != v.SweepContent {
			continue
		}
		ids = append(ids, msg.ID)
	}
	if len(ids) == 0 {
		return
	}
	if err := d.platform.BulkDelete(ctx, t.ChannelID, ids); err == nil {
		return
	} else if permissionDenied(err) {
		return
	}
	for _, id := range ids {
		d.tolerate(d.platform.DeleteMessage(ctx, t.ChannelID, id), "sweep delete", t)
	}
}

func (d *Dispatcher) applyActorAction(ctx context.Context, t Target, v detect.Verdict) bool {
	action := v.Action
	if action == "" {
		action = policy.ActionDelete
	}
	switch action {
	case policy.ActionDelete:
		return true
	case policy.ActionLock:
		if d.locker != nil && t.ChannelID != "" {
			d.locker.Lock(ctx, t.GuildID, t.ChannelID)
			return true
		}
		return false
	case policy.ActionRevert:
		if t.AdminKind == "" {
			return false
		}
		err := d.platform.Revert(ctx, t.GuildID, t.AdminKind, t.AdminTargetID)
		d.tolerate(err, "revert admin action", t)
		return err == nil || alreadyGone(err)
	}

	if t.UserID == "" {
		return false
	}
	if !d.platform.CanModerate(t.GuildID, t.UserID) {
		// Degrade to the content-only outcome; not an error.
		return false
	}

	var err error
	switch action {
	case policy.ActionTimeout:
		timeout := v.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Minute
		}
		err = d.platform.Timeout(ctx, t.GuildID, t.UserID, d.clock.Now().Add(timeout), v.Reason)
	case policy.ActionKick:
		err = d.platform.Kick(ctx, t.GuildID, t.UserID, v.Reason)
	case policy.ActionBan:
		err = d.platform.Ban(ctx, t.GuildID, t.UserID, v.Reason)
	case policy.ActionDisconnect:
		err = d.platform.Disconnect(ctx, t.GuildID, t.UserID)
	case policy.ActionRemoveRoles:
		err = d.platform.RemoveRoles(ctx, t.GuildID, t.UserID)
	default:
		d.logger.Warn("unknown action kind", zap.String("action", string(action)), zap.String("policy", string(v.Policy)))
		return false
	}
	d.tolerate(err, string(action), t)
	return err == nil || alreadyGone(err)
}

func (d *Dispatcher) notify(ctx context.Context, t Target, v detect.Verdict, applied bool) {
	if t.ChannelID == "" {
		return
	}
	var content string
	if applied && actorFacing(v.Action) {
		content = fmt.Sprintf("<@%s> was sanctioned (%s). Reason: %s", t.UserID, v.Action, v.Reason)
	} else {
		content = fmt.Sprintf("Violation by <@%s> detected. Reason: %s", t.UserID, v.Reason)
	}
	// Best effort only.
	if err := d.platform.Notify(ctx, t.ChannelID, content); err != nil && !permissionDenied(err) && !alreadyGone(err) {
		d.logger.Debug("violation notice failed", zap.Error(err))
	}
}

func actorFacing(action policy.ActionKind) bool {
	switch action {
	case policy.ActionTimeout, policy.ActionKick, policy.ActionBan,
		policy.ActionDisconnect, policy.ActionRemoveRoles:
		return true
	default:
		return false
	}
}

// tolerate swallows expected platform refusals and logs everything else.
func (d *Dispatcher) tolerate(err error, op string, t Target) {
	if err == nil || permissionDenied(err) || alreadyGone(err) {
		return
	}
	d.logger.Warn("platform call failed",
		zap.String("op", op),
		zap.String("guild_id", t.GuildID),
		zap.String("user_id", t.UserID),
		zap.Error(err))
}

func (d *Dispatcher) claim(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.inflight[key]; busy {
		return false
	}
	d.inflight[key] = struct{}{}
	return true
}

func (d *Dispatcher) release(key string) {
	d.mu.Lock()
	delete(d.inflight, key)
	d.mu.Unlock()
}
