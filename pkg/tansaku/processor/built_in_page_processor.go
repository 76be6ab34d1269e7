package processor

import (
	"bytes"
	"context"
	"strings"

	"github.com/murakmii/tansaku/pkg/tansaku"
	"github.com/murakmii/tansaku/pkg/tansaku/www"
)

type builtInPageProcessor struct{}

func BuiltInPageProcessorProvider(_ context.Context, _ *tansaku.Configuration) (tansaku.PageProcessor, error) {
	return &builtInPageProcessor{}, nil
}

// HTML以外のページからは何も抽出しない
func (p *builtInPageProcessor) Process(ctx context.Context, fetched *tansaku.FetchedPage, seed *www.NormalizedURL, keywords []string) (*tansaku.PageArtifact, error) {
	artifact := &tansaku.PageArtifact{URL: fetched.URL}

	if !isHTML(fetched.ContentType) {
		tansaku.LoggerFromContext(ctx).Debugf("skipped extraction of non html content: %s", fetched.ContentType)
		return artifact, nil
	}

	page, err := Extract(bytes.NewReader(fetched.Body), fetched.URL, seed)
	if err != nil {
		return nil, &tansaku.ParseError{URL: fetched.URL.String(), Err: err}
	}

	artifact.Links = page.Links
	artifact.Images = page.Images
	artifact.Keywords = MatchKeywords(page.Text, keywords)

	tansaku.LoggerFromContext(ctx).Debugf("extracted %d link(s), %d image(s), keywords: %v", len(page.Links), len(page.Images), artifact.Keywords)
	return artifact, nil
}

func (p *builtInPageProcessor) Finish() error {
	return nil
}

func isHTML(contentType string) bool {
	return len(contentType) == 0 || strings.Contains(strings.ToLower(contentType), "html")
}
