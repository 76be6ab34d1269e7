package result_store

import (
	"sort"
	"strings"
)

const (
	pagesFile          = "pages.csv"
	imagesFile         = "images.csv"
	keywordMatchesFile = "keyword_matches.csv"
	allLinksFile       = "all_links.csv"
)

type pageRow struct {
	URL string `csv:"URL"`
}

type imageRow struct {
	SourceURL string `csv:"Source URL"`
	ImageURL  string `csv:"Image URL"`
}

type keywordMatchRow struct {
	URL             string `csv:"URL"`
	MatchedKeywords string `csv:"Matched Keywords"`
}

type linkRow struct {
	SourceURL string `csv:"Source URL"`
	LinkURL   string `csv:"Link URL"`
}

// 保存される4つの表。全て辞書順に並べられている
type tables struct {
	pages          []pageRow
	images         []imageRow
	keywordMatches []keywordMatchRow
	links          []linkRow
}

func (s *builtInResultStore) buildTables() *tables {
	t := &tables{
		pages:          make([]pageRow, 0, len(s.targets)),
		images:         make([]imageRow, 0, len(s.images)),
		keywordMatches: make([]keywordMatchRow, 0, len(s.keywords)),
		links:          make([]linkRow, 0, len(s.links)),
	}

	for target := range s.targets {
		t.pages = append(t.pages, pageRow{URL: target})
	}
	sort.Slice(t.pages, func(i, j int) bool { return t.pages[i].URL < t.pages[j].URL })

	for image := range s.images {
		t.images = append(t.images, imageRow{SourceURL: image.source, ImageURL: image.target})
	}
	sort.Slice(t.images, func(i, j int) bool {
		if t.images[i].SourceURL != t.images[j].SourceURL {
			return t.images[i].SourceURL < t.images[j].SourceURL
		}
		return t.images[i].ImageURL < t.images[j].ImageURL
	})

	for url, keywords := range s.keywords {
		t.keywordMatches = append(t.keywordMatches, keywordMatchRow{URL: url, MatchedKeywords: strings.Join(keywords, ", ")})
	}
	sort.Slice(t.keywordMatches, func(i, j int) bool { return t.keywordMatches[i].URL < t.keywordMatches[j].URL })

	for link := range s.links {
		t.links = append(t.links, linkRow{SourceURL: link.source, LinkURL: link.target})
	}
	sort.Slice(t.links, func(i, j int) bool {
		if t.links[i].SourceURL != t.links[j].SourceURL {
			return t.links[i].SourceURL < t.links[j].SourceURL
		}
		return t.links[i].LinkURL < t.links[j].LinkURL
	})

	return t
}
