package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"golang.org/x/net/html/charset"
	"golang.org/x/xerrors"

	"github.com/murakmii/tansaku/pkg/tansaku"
	"github.com/murakmii/tansaku/pkg/tansaku/www"
)

type builtInFetcher struct {
	headerUA    string
	maxBodySize int64
	retry       tansaku.RetryPolicy
	httpClient  *http.Client
}

// ページを取得する際のリダイレクトのルール
// ホスト名が等しい限り5回までリダイレクトする
var pageRedirectPolicy = func(req *http.Request, via []*http.Request) error {
	if len(via) >= 5 {
		return http.ErrUseLastResponse
	}

	before, err := www.FromURL(via[len(via)-1].URL)
	if err != nil {
		return http.ErrUseLastResponse
	}

	next, err := www.FromURL(req.URL)
	if err != nil {
		return http.ErrUseLastResponse
	}

	if before.Host() != next.Host() {
		return http.ErrUseLastResponse
	}

	tansaku.LoggerFromContext(req.Context()).Debugf("redirecting: %s", req.URL)
	return nil
}

// Fetcherを生成して返す
func BuiltInFetcherProvider(_ context.Context, conf *tansaku.Configuration) (tansaku.Fetcher, error) {
	return &builtInFetcher{
		headerUA:    conf.UserAgent,
		maxBodySize: conf.MaxBodySize,
		retry:       conf.Retry,
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        1,
				MaxIdleConnsPerHost: 1,
				IdleConnTimeout:     30 * time.Second,
			},
			CheckRedirect: pageRedirectPolicy,
			Timeout:       conf.Timeout,
		},
	}, nil
}

// 失敗したら設定に従って再試行する。再試行を使い切ったら*tansaku.FetchErrorを返す
func (f *builtInFetcher) Fetch(ctx context.Context, url *www.NormalizedURL) (*tansaku.FetchedPage, error) {
	logger := tansaku.LoggerFromContext(ctx)

	attempts := 0
	page, err := failsafe.With[*tansaku.FetchedPage](newRetryPolicy(f.retry)).
		WithContext(ctx).
		Get(func() (*tansaku.FetchedPage, error) {
			attempts++
			if attempts > 1 {
				logger.Infof("retrying (%d/%d): %s", attempts, f.retry.MaxAttempts, url)
			}

			page, err := f.request(ctx, url)
			if err != nil {
				logger.Debugf("attempt %d failed: %v", attempts, err)
			}

			return page, err
		})

	if err != nil {
		return nil, &tansaku.FetchError{URL: url.String(), Attempts: attempts, Err: err}
	}

	return page, nil
}

func (f *builtInFetcher) Finish() error {
	f.httpClient.CloseIdleConnections()
	return nil
}

// 再試行の方針をfailsafe-goの再試行ポリシーに変換する
func newRetryPolicy(policy tansaku.RetryPolicy) retrypolicy.RetryPolicy[*tansaku.FetchedPage] {
	builder := retrypolicy.NewBuilder[*tansaku.FetchedPage]().
		HandleIf(func(_ *tansaku.FetchedPage, err error) bool {
			return err != nil && !xerrors.Is(err, context.Canceled)
		}).
		WithMaxRetries(policy.MaxAttempts - 1).
		ReturnLastFailure()

	if policy.MaxDelay > policy.BaseDelay {
		builder = builder.WithBackoff(policy.BaseDelay, policy.MaxDelay)
	} else if policy.BaseDelay > 0 {
		builder = builder.WithDelay(policy.BaseDelay)
	}

	return builder.Build()
}

// 1回分のHTTP GET。2xx以外はエラーとする
func (f *builtInFetcher) request(ctx context.Context, url *www.NormalizedURL) (*tansaku.FetchedPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url.String(), nil)
	if err != nil {
		return nil, xerrors.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("User-Agent", f.headerUA)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	start := time.Now()
	resp, err := f.httpClient.Do(req)
	elapsed := time.Since(start).Seconds()
	tansaku.TracerFromContext(ctx).TraceGetRequest(ctx, elapsed)

	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &tansaku.StatusError{StatusCode: resp.StatusCode}
	}

	body, err := f.readBody(resp)
	if err != nil {
		return nil, xerrors.Errorf("failed to read body: %w", err)
	}

	return &tansaku.FetchedPage{
		URL:         url,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
		Elapsed:     elapsed,
	}, nil
}

// Content-Encodingを解いて、テキストであればUTF-8に変換した本文を返す
func (f *builtInFetcher) readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, xerrors.Errorf("gzip decode: %w", err)
		}
		defer gz.Close()
		reader = gz

	case "deflate":
		fl := flate.NewReader(resp.Body)
		defer fl.Close()
		reader = fl

	case "br":
		reader = brotli.NewReader(resp.Body)
	}

	reader = io.LimitReader(reader, f.maxBodySize)

	contentType := resp.Header.Get("Content-Type")
	if parsableText(contentType) {
		decoded, err := charset.NewReader(reader, contentType)
		if err != nil {
			return nil, xerrors.Errorf("charset decode: %w", err)
		}
		reader = decoded
	}

	return io.ReadAll(reader)
}

func parsableText(contentType string) bool {
	return len(contentType) == 0 ||
		strings.Contains(contentType, "text") ||
		strings.Contains(contentType, "html") ||
		strings.Contains(contentType, "xml")
}
