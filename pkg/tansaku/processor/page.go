package processor

import (
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/xerrors"

	"github.com/murakmii/tansaku/pkg/tansaku/www"
)

// HTMLから抽出した内容
type Page struct {
	Links  []*www.NormalizedURL
	Images []string
	Text   string
}

var lowerCaser = cases.Lower(language.Und)

// HTMLからリンク、画像、本文を抽出する
// リンクはbaseを基準に解決して正規化し、seedと同じホストのものだけを残す
// 画像はbaseを基準に解決するだけで、正規化も範囲の判定もしない
func Extract(r io.Reader, base, seed *www.NormalizedURL) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, xerrors.Errorf("can't parse html: %w", err)
	}

	page := &Page{
		Links:  make([]*www.NormalizedURL, 0),
		Images: make([]string, 0),
	}

	seenLinks := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if len(href) == 0 || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return
		}

		link, err := base.Join(href)
		if err != nil || !www.SameHost(link, seed) {
			return
		}

		if _, ok := seenLinks[link.String()]; ok {
			return
		}

		seenLinks[link.String()] = struct{}{}
		page.Links = append(page.Links, link)
	})

	seenImages := make(map[string]struct{})
	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		src := strings.TrimSpace(s.AttrOr("src", ""))
		if len(src) == 0 {
			return
		}

		image, err := base.ResolveReference(src)
		if err != nil {
			return
		}

		if _, ok := seenImages[image.String()]; ok {
			return
		}

		seenImages[image.String()] = struct{}{}
		page.Images = append(page.Images, image.String())
	})

	doc.Find("script, style, noscript, template").Remove()
	page.Text = doc.Text()

	return page, nil
}

// 本文に(大小文字を無視して)含まれるキーワードを、設定された順で返す
// 1つも含まれなければnilを返す
func MatchKeywords(text string, keywords []string) []string {
	if len(keywords) == 0 {
		return nil
	}

	lowered := lowerCaser.String(text)

	var matched []string
	seen := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}

		if strings.Contains(lowered, lowerCaser.String(kw)) {
			matched = append(matched, kw)
		}
	}

	return matched
}
