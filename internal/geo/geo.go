// Package geo abstracts geolocation acquisition. A fix is cosmetic
// provenance for history records: failure or timeout resolves to "no
// coordinate" rather than an error.
package geo

import (
	"context"
	"time"

	"github.com/bingyoan/SAUSEGE/internal/menu"
)

// Provider yields a best-effort coordinate fix. The boolean is false when no
// fix is available.
type Provider interface {
	Locate(ctx context.Context) (menu.GeoLocation, bool)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context) (menu.GeoLocation, bool)

// Locate implements Provider.
func (f ProviderFunc) Locate(ctx context.Context) (menu.GeoLocation, bool) {
	return f(ctx)
}

// NopProvider never produces a fix.
type NopProvider struct{}

// Locate implements Provider.
func (NopProvider) Locate(context.Context) (menu.GeoLocation, bool) {
	return menu.GeoLocation{}, false
}

// Timeout wraps p so acquisition gives up after d. A slow provider resolves
// to no coordinate instead of blocking the caller.
func Timeout(p Provider, d time.Duration) Provider {
	return ProviderFunc(func(ctx context.Context) (menu.GeoLocation, bool) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		type fix struct {
			loc menu.GeoLocation
			ok  bool
		}
		ch := make(chan fix, 1)
		go func() {
			loc, ok := p.Locate(ctx)
			ch <- fix{loc, ok}
		}()

		select {
		case f := <-ch:
			return f.loc, f.ok
		case <-ctx.Done():
			return menu.GeoLocation{}, false
		}
	})
}
