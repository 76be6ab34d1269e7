package tansaku

import (
	"fmt"

	"golang.org/x/xerrors"
)

var (
	// robots.txtにより取得が禁止されていることを表す。ログ出力のみに使う
	ErrRobotsDisallowed = xerrors.New("disallowed by robots.txt")

	// READYではないセッションでクロールを開始しようとした
	ErrSessionNotReady = xerrors.New("session is not ready")
)

// 設定が不正であることを表すエラー。クロールは開始されない
type ConfigurationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if len(e.Value) == 0 {
		return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
	}

	return fmt.Sprintf("invalid configuration: %s(%q): %s", e.Field, e.Value, e.Reason)
}

// robots.txtの取得、解釈に失敗したことを表すエラー
// このエラーが返されても、該当オリジンは全て許可として扱われる
type PolicyLoadError struct {
	URL string
	Err error
}

func (e *PolicyLoadError) Error() string {
	return fmt.Sprintf("failed to load robots policy from %s (allowing all): %v", e.URL, e.Err)
}

func (e *PolicyLoadError) Unwrap() error {
	return e.Err
}

// 再試行を使い切ってもページを取得できなかったことを表すエラー
type FetchError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch %s after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// 取得したページを解析できなかったことを表すエラー
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// 2xx以外のレスポンスを表すエラー
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.StatusCode)
}
