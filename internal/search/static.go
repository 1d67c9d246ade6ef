// internal/search/static.go
package search

import (
	"context"

	"github.com/xkilldash9x/waypoint/api/schemas"
)

// StaticProvider returns a fixed result list regardless of the query.
type StaticProvider struct {
	results []string
}

var _ schemas.SearchProvider = (*StaticProvider)(nil)

func NewStaticProvider(results []string) *StaticProvider {
	return &StaticProvider{results: append([]string(nil), results...)}
}

func (p *StaticProvider) Search(ctx context.Context, _ string, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := p.results
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return append([]string(nil), out...), nil
}
