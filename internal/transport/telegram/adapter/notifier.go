package adapter

import (
	"context"

	"golang.org/x/time/rate"

	"snoozebot/internal/mute"
	kit "snoozebot/internal/transport"
)

// Notifier posts announcements into one chat, rate limited.
type Notifier struct {
	sender kit.Adapter
	target kit.ChatTarget
	lim    *rate.Limiter
}

var _ mute.Notifier = (*Notifier)(nil)

// NewNotifier allows perSec posts per second (burst 3). perSec <= 0 means 1.
func NewNotifier(sender kit.Adapter, target kit.ChatTarget, perSec int) *Notifier {
	if perSec <= 0 {
		perSec = 1
	}
	return &Notifier{sender: sender, target: target, lim: rate.NewLimiter(rate.Limit(perSec), 3)}
}

func (n *Notifier) Announce(ctx context.Context, text string) error {
	if err := n.lim.Wait(ctx); err != nil {
		return err
	}
	_, err := n.sender.SendText(ctx, n.target, text, &kit.SendOptions{DisablePreview: true})
	return err
}
