package sink

import (
	"context"
	"errors"

	"github.com/Oceanjackson1/Polymarket-BTC-5m-Scraper-API-Soluation/internal/domain"
)

// Composite fans every record out to all configured sinks. Errors from the
// individual sinks are joined so one failing backend does not hide another.
type Composite struct {
	sinks []domain.RecordSink
}

// NewComposite wraps the given sinks. A composite over zero sinks discards
// everything.
func NewComposite(sinks ...domain.RecordSink) *Composite {
	return &Composite{sinks: sinks}
}

func (c *Composite) WriteSnapshot(ctx context.Context, snap domain.BookSnapshot) error {
	var errs []error
	for _, s := range c.sinks {
		if err := s.WriteSnapshot(ctx, snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Composite) WriteDelta(ctx context.Context, d domain.PriceDelta) error {
	var errs []error
	for _, s := range c.sinks {
		if err := s.WriteDelta(ctx, d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Composite) WriteTrade(ctx context.Context, t domain.Trade) error {
	var errs []error
	for _, s := range c.sinks {
		if err := s.WriteTrade(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Composite) Flush(ctx context.Context) error {
	var errs []error
	for _, s := range c.sinks {
		if err := s.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Composite) Close() error {
	var errs []error
	for _, s := range c.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ domain.RecordSink = (*Composite)(nil)
