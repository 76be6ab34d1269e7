package www

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// クロール中で扱う、正規化済みのURLを表す型
// スキーム、ホスト、パスのみを持ち、クエリとフラグメントは持たない
type NormalizedURL struct {
	url *url.URL
}

// URLを正規化してNormalizedURLを返す
func FromURL(u *url.URL) (*NormalizedURL, error) {
	if !u.IsAbs() {
		return nil, fmt.Errorf("url is NOT absolute url")
	}

	if u.User != nil {
		return nil, fmt.Errorf("url has userinfo")
	}

	nScheme := strings.ToLower(u.Scheme)
	if nScheme != "http" && nScheme != "https" {
		return nil, fmt.Errorf("url's scheme is invalid: %s", nScheme)
	}

	hostname := u.Hostname()
	if len(hostname) == 0 {
		return nil, fmt.Errorf("url has no host")
	}

	nHost := strings.ToLower(hostname)
	if ip := net.ParseIP(nHost); ip == nil {
		ascii, err := idna.ToASCII(nHost)
		if err != nil {
			return nil, fmt.Errorf("url has invalid host: %s", hostname)
		}
		nHost = ascii
	} else if strings.Contains(nHost, ":") {
		// IPv4射影アドレスも含め、IPv6の表記は括弧で囲む
		nHost = "[" + nHost + "]"
	}

	if len(nHost) > 255 {
		return nil, fmt.Errorf("url's host is too long")
	}

	if port := u.Port(); len(port) > 0 {
		nHost = nHost + ":" + port
	}

	// %2Fのようなエスケープを保つため、RawPathも引き継ぐ
	nPath, nRawPath := u.Path, u.RawPath
	if len(nPath) == 0 {
		nPath, nRawPath = "/", ""
	}

	return &NormalizedURL{
		url: &url.URL{
			Scheme:  nScheme,
			Host:    nHost,
			Path:    nPath,
			RawPath: nRawPath,
		},
	}, nil
}

// 文字列で表されるURLを正規化してNormalizedURLを返す
func Normalize(s string) (*NormalizedURL, error) {
	if len(s) > 2000 {
		return nil, fmt.Errorf("url is too long")
	}

	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("can't parse url: %s", s)
	}

	return FromURL(u)
}

// URLのホスト部を返す(ポート番号を含む)
func (n *NormalizedURL) Host() string {
	return n.url.Host
}

// URLのパス部を返す(デコード済み)
func (n *NormalizedURL) Path() string {
	return n.url.Path
}

// URLのパス部をエスケープされた形で返す
func (n *NormalizedURL) EscapedPath() string {
	return n.url.EscapedPath()
}

// URLの文字列表現を返す
func (n *NormalizedURL) String() string {
	return n.url.String()
}

// このURLに対して有効なrobots.txtのURLを返す
func (n *NormalizedURL) RobotsTxtURL() *NormalizedURL {
	return &NormalizedURL{
		url: &url.URL{
			Scheme: n.url.Scheme,
			Host:   n.url.Host,
			Path:   "/robots.txt",
		},
	}
}

// このURLを基準に参照を解決し、絶対URLを返す(正規化はしない)
func (n *NormalizedURL) ResolveReference(ref string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return nil, fmt.Errorf("can't parse url: %s", ref)
	}

	return n.url.ResolveReference(u), nil
}

// このURLを基準に参照を解決し、正規化したURLを返す
func (n *NormalizedURL) Join(ref string) (*NormalizedURL, error) {
	u, err := n.ResolveReference(ref)
	if err != nil {
		return nil, err
	}

	return FromURL(u)
}

// 2つのURLのホストが完全に一致するかどうかを返す。サブドメインは区別する
func SameHost(a, b *NormalizedURL) bool {
	if a == nil || b == nil {
		return false
	}

	return a.Host() == b.Host()
}
