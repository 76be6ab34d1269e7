package robots

import (
	"context"
	"net/http"
	"strings"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/xerrors"

	"github.com/murakmii/tansaku/pkg/tansaku"
	"github.com/murakmii/tansaku/pkg/tansaku/www"
)

const policyCacheSize = 64

type builtInPolitenessGuard struct {
	headerUA    string
	primaryUA   string
	secondaryUA string
	httpClient  *http.Client
	policies    *lru.Cache
}

// robots.txtを取得する際のリダイレクトのルール
// 元のホストか、そのサブドメインである限り、3回までリダイレクトする
var robotsTxtRedirectPolicy = func(req *http.Request, via []*http.Request) error {
	if len(via) >= 3 {
		return http.ErrUseLastResponse
	}

	first, err := www.FromURL(via[0].URL)
	if err != nil {
		return http.ErrUseLastResponse
	}

	next, err := www.FromURL(req.URL)
	if err != nil {
		return http.ErrUseLastResponse
	}

	if next.Host() != first.Host() && !strings.HasSuffix(next.Host(), "."+first.Host()) {
		return http.ErrUseLastResponse
	}

	tansaku.LoggerFromContext(req.Context()).Debugf("redirecting: %s", req.URL)
	return nil
}

func BuiltInPolitenessGuardProvider(_ context.Context, conf *tansaku.Configuration) (tansaku.PolitenessGuard, error) {
	policies, err := lru.New(policyCacheSize)
	if err != nil {
		return nil, xerrors.Errorf("failed to build policy cache: %w", err)
	}

	return &builtInPolitenessGuard{
		headerUA:    conf.UserAgent,
		primaryUA:   conf.RobotsPrimaryUA,
		secondaryUA: conf.RobotsSecondaryUA,
		httpClient: &http.Client{
			CheckRedirect: robotsTxtRedirectPolicy,
			Timeout:       conf.Timeout,
		},
		policies: policies,
	}, nil
}

// ホスト毎に1度だけrobots.txtを取得する。スキームが異なっても同じホストなら同じポリシーを使う
// 取得、解釈できなければそのホストは全て許可として記録し、*tansaku.PolicyLoadErrorを返す
func (g *builtInPolitenessGuard) LoadPolicy(ctx context.Context, seed *www.NormalizedURL) error {
	robotsURL := seed.RobotsTxtURL()
	key := seed.Host()
	if g.policies.Contains(key) {
		return nil
	}

	txt, err := g.fetch(ctx, robotsURL)
	if err != nil {
		g.policies.Add(key, AllowAll())
		return &tansaku.PolicyLoadError{URL: robotsURL.String(), Err: err}
	}

	g.policies.Add(key, txt)
	tansaku.LoggerFromContext(ctx).Debugf("loaded robots policy: %s", robotsURL)
	return nil
}

func (g *builtInPolitenessGuard) CanFetch(ctx context.Context, url *www.NormalizedURL) bool {
	cached, ok := g.policies.Get(url.Host())
	if !ok {
		return true
	}

	allowed := cached.(*Txt).Allows(url.EscapedPath())
	if !allowed {
		tansaku.LoggerFromContext(ctx).Debugf("crawling disallowed by robots.txt: %s", url)
	}

	return allowed
}

func (g *builtInPolitenessGuard) InScope(url, seed *www.NormalizedURL) bool {
	return www.SameHost(url, seed)
}

func (g *builtInPolitenessGuard) Reset() error {
	g.policies.Purge()
	return nil
}

func (g *builtInPolitenessGuard) Finish() error {
	g.httpClient.CloseIdleConnections()
	return nil
}

func (g *builtInPolitenessGuard) fetch(ctx context.Context, robotsURL *www.NormalizedURL) (*Txt, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return nil, xerrors.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", g.headerUA)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &tansaku.StatusError{StatusCode: resp.StatusCode}
	}

	return NewRobotsTxt(resp.Body, g.primaryUA, g.secondaryUA)
}
