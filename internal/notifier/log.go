package notifier

import (
	"log/slog"

	"github.com/wohnblick/wohnblick/internal/model"
)

// Ensure LogNotifier implements model.Notifier.
var _ model.Notifier = (*LogNotifier)(nil)

// LogNotifier writes new listings to the given logger as structured messages.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier that logs each listing via slog.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the listing's key attributes. Returns nil (logging does not fail).
func (n *LogNotifier) Notify(l model.Listing) error {
	args := []any{"source", l.Source, "address", l.Address, "url", l.URL()}
	if l.Borough != "" {
		args = append(args, "borough", l.Borough)
	}
	if l.PriceTotal != nil {
		args = append(args, "price_total", *l.PriceTotal)
	}
	if l.PriceCold != nil {
		args = append(args, "price_cold", *l.PriceCold)
	}
	if l.SizeSqm != nil {
		args = append(args, "size_sqm", *l.SizeSqm)
	}
	if l.Rooms != nil {
		args = append(args, "rooms", *l.Rooms)
	}
	n.logger.Info("new listing", args...)
	return nil
}

// Send logs a plain status message.
func (n *LogNotifier) Send(text string) error {
	n.logger.Info(text)
	return nil
}
