package tui

import (
	"fmt"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/cache"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/matheus3301/chatsync/internal/transport"
	"github.com/matheus3301/chatsync/internal/tui/ui"
)

// sendFailure describes a failed send. Only failures that may pass on a
// second attempt are offered for retry.
func sendFailure(err error) (text string, retry bool) {
	if transport.Retryable(err) {
		return "send failed (r to retry): " + err.Error(), true
	}
	return "send failed: " + err.Error(), false
}

// linkNotice turns a push.* bus event into a notice. Resetting and the
// reattach that follows it are reported once, by the reset event.
func linkNotice(evt bus.Event) (ui.Level, string, bool) {
	switch evt.Kind {
	case bus.PushReset:
		keys, _ := evt.Payload.([]cache.Key)
		return ui.LevelWarn, fmt.Sprintf("push channel reconnected, reloading %d lists", len(keys)), true
	case bus.PushRejected:
		if err, ok := evt.Payload.(error); ok {
			return ui.LevelWarn, "dropped push event: " + err.Error(), true
		}
		return ui.LevelWarn, "dropped push event", true
	case bus.PushLinkChanged:
		change, ok := evt.Payload.(status.StatusChange)
		if !ok {
			return 0, "", false
		}
		switch {
		case change.From == status.Detached && change.To == status.Attached:
			return ui.LevelInfo, "live updates on", true
		case change.To == status.Closed:
			return ui.LevelWarn, "live updates off", true
		}
	}
	return 0, "", false
}
