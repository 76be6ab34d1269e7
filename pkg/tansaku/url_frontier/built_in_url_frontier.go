package url_frontier

import (
	"context"

	"github.com/murakmii/tansaku/pkg/tansaku"
	"github.com/murakmii/tansaku/pkg/tansaku/www"
)

// 優先度毎の2層のFIFOと、訪問済みURLの集合を持つURLFrontier
type builtInURLFrontier struct {
	high    []*www.NormalizedURL
	low     []*www.NormalizedURL
	seen    map[string]struct{}
	visited map[string]struct{}
}

func BuiltInURLFrontierProvider(_ context.Context, _ *tansaku.Configuration) (tansaku.URLFrontier, error) {
	return newBuiltInURLFrontier(), nil
}

func newBuiltInURLFrontier() *builtInURLFrontier {
	return &builtInURLFrontier{
		high:    make([]*www.NormalizedURL, 0),
		low:     make([]*www.NormalizedURL, 0),
		seen:    make(map[string]struct{}),
		visited: make(map[string]struct{}),
	}
}

// 訪問済み、もしくは一度でも追加されたURLは追加しない
func (f *builtInURLFrontier) Enqueue(ctx context.Context, url *www.NormalizedURL, priority www.Priority) bool {
	key := url.String()
	if _, ok := f.visited[key]; ok {
		return false
	}

	if _, ok := f.seen[key]; ok {
		return false
	}

	switch priority {
	case www.High:
		f.high = append(f.high, url)
	case www.Low:
		f.low = append(f.low, url)
	default:
		tansaku.LoggerFromContext(ctx).Debugf("rejected out of scope url: %s", url)
		return false
	}

	f.seen[key] = struct{}{}
	return true
}

func (f *builtInURLFrontier) Dequeue(_ context.Context) (*www.NormalizedURL, bool) {
	var url *www.NormalizedURL

	switch {
	case len(f.high) > 0:
		url, f.high[0] = f.high[0], nil
		f.high = f.high[1:]
	case len(f.low) > 0:
		url, f.low[0] = f.low[0], nil
		f.low = f.low[1:]
	default:
		return nil, false
	}

	return url, true
}

func (f *builtInURLFrontier) MarkVisited(url *www.NormalizedURL) {
	f.visited[url.String()] = struct{}{}
}

func (f *builtInURLFrontier) IsVisited(url *www.NormalizedURL) bool {
	_, ok := f.visited[url.String()]
	return ok
}

func (f *builtInURLFrontier) VisitedCount() int {
	return len(f.visited)
}

func (f *builtInURLFrontier) Len() int {
	return len(f.high) + len(f.low)
}

func (f *builtInURLFrontier) IsDone(visitedCount, budget int) bool {
	return visitedCount >= budget || f.Len() == 0
}

func (f *builtInURLFrontier) Reset() error {
	f.high = make([]*www.NormalizedURL, 0)
	f.low = make([]*www.NormalizedURL, 0)
	f.seen = make(map[string]struct{})
	f.visited = make(map[string]struct{})
	return nil
}

func (f *builtInURLFrontier) Finish() error {
	return nil
}
