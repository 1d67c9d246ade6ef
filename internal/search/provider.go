// internal/search/provider.go
package search

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/waypoint/api/schemas"
	"github.com/xkilldash9x/waypoint/internal/config"
)

// New returns the search provider selected by cfg.Provider.
func New(cfg config.SearchConfig, logger *zap.Logger) (schemas.SearchProvider, error) {
	switch cfg.Provider {
	case config.SearchBrave:
		return NewBraveProvider(cfg, logger)
	case config.SearchStatic:
		return NewStaticProvider(cfg.StaticResults), nil
	default:
		return nil, fmt.Errorf("unknown search provider %q", cfg.Provider)
	}
}
