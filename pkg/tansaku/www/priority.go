package www

import (
	"net/url"
	"strings"
)

// フロンティア中の優先度
type Priority int

const (
	OutOfScope Priority = iota
	Low
	High
)

func (p Priority) String() string {
	switch p {
	case High:
		return "high"
	case Low:
		return "low"
	default:
		return "out-of-scope"
	}
}

// 発見したリンクの優先度を決める
// シードと異なるホストはOutOfScope、パスのセグメントのいずれかがキーワードと(大小文字を無視して)一致すればHigh
func Classify(link, seed *NormalizedURL, keywords []string) Priority {
	if !SameHost(link, seed) {
		return OutOfScope
	}

	for _, escaped := range strings.Split(link.EscapedPath(), "/") {
		segment, err := url.PathUnescape(escaped)
		if err != nil || len(segment) == 0 {
			continue
		}

		for _, kw := range keywords {
			if strings.EqualFold(segment, kw) {
				return High
			}
		}
	}

	return Low
}
