package audit

import (
	"context"
	"crypto/md5"

	"sunwell/internal/eventbus"
	"sunwell/internal/logging"
)

// auditedEventTypes are the bus events that get translated into audit
// entries automatically. State-machine decisions (approve_wave, abort)
// are not bus events and are audited directly by their callers.
var auditedEventTypes = map[eventbus.EventType]string{
	eventbus.EventWaveScored:           "wave_scored",
	eventbus.EventCascadePaused:        "cascade_paused",
	eventbus.EventCascadeComplete:      "cascade_complete",
	eventbus.EventCascadeAborted:       "cascade_aborted",
	eventbus.EventIntegrationCheckFail: "integration_check_fail",
}

// RunSubscriber drains bus on the calling goroutine, translating
// auditedEventTypes into log entries until ctx is cancelled or the bus
// channel is closed. Callers should run it in its own goroutine.
func RunSubscriber(ctx context.Context, bus *eventbus.Bus, log Log) {
	id, ch := bus.Subscribe()
	defer bus.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			action, tracked := auditedEventTypes[ev.Type]
			if !tracked {
				continue
			}
			sum := md5.Sum(ev.Data)
			if _, err := log.Append(ctx, "eventbus", action, ev.Data, sum, sum); err != nil {
				logging.Get(logging.CategoryAudit).Error("failed to audit event seq=%d action=%s: %v", ev.Seq, action, err)
			}
		}
	}
}
