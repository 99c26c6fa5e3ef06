package notify

import (
	"context"

	"github.com/jprome/auct-alert/internal/model"
)

// AlertMessage carries everything a notifier needs to render one alert.
type AlertMessage struct {
	Item         *model.AuctionItem
	Confidence   float64
	MatchReasons []string

	// ClickURL is the tracking link; empty means link straight to the
	// listing.
	ClickURL string
	ToEmail  string
}

// Notifier delivers alert notifications.
type Notifier interface {
	Send(ctx context.Context, msg *AlertMessage) error
}
