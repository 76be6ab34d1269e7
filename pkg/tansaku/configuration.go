package tansaku

import (
	"context"
	"strconv"
	"strings"
	"time"

	"golang.org/x/xerrors"

	"github.com/murakmii/tansaku/pkg/tansaku/www"
)

type (
	URLFrontierProviderFunc     func(ctx context.Context, conf *Configuration) (URLFrontier, error)
	PolitenessGuardProviderFunc func(ctx context.Context, conf *Configuration) (PolitenessGuard, error)
	FetcherProviderFunc         func(ctx context.Context, conf *Configuration) (Fetcher, error)
	PageProcessorProviderFunc   func(ctx context.Context, conf *Configuration) (PageProcessor, error)
	ResultStoreProviderFunc     func(ctx context.Context, conf *Configuration) (ResultStore, error)
	ExporterProviderFunc        func(ctx context.Context, conf *Configuration) (Exporter, error)
	TracerProviderFunc          func(conf *Configuration) (Tracer, error)

	// 指定時間待機する。contextがキャンセルされた場合はその時点でエラーを返すこと
	SleeperFunc func(ctx context.Context, d time.Duration) error
)

// 取得失敗時の再試行の方針
// MaxAttemptsは初回を含めた試行回数。待機時間はBaseDelayから倍々で増え、MaxDelayで頭打ちになる
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

type Configuration struct {
	SeedURL  string
	Budget   int
	Keywords []string

	Delay       time.Duration
	Timeout     time.Duration
	Retry       RetryPolicy
	MaxBodySize int64

	UserAgent         string
	RobotsPrimaryUA   string
	RobotsSecondaryUA string

	OutputDir string

	DebugLevelLogging bool
	JSONLogging       bool

	AwsRegion          string
	AwsAccessKeyID     string
	AwsSecretAccessKey string

	Sleeper SleeperFunc

	URLFrontierProvider     URLFrontierProviderFunc
	PolitenessGuardProvider PolitenessGuardProviderFunc
	FetcherProvider         FetcherProviderFunc
	PageProcessorProvider   PageProcessorProviderFunc
	ResultStoreProvider     ResultStoreProviderFunc
	ExporterProviders       []ExporterProviderFunc
	TracerProvider          TracerProviderFunc

	Options map[string]interface{}
}

const (
	DefaultBudget            = 5
	DefaultDelay             = 1 * time.Second
	DefaultTimeout           = 10 * time.Second
	DefaultMaxBodySize       = 5 << 20
	DefaultUserAgent         = "tansaku/0.1 (+https://github.com/murakmii/tansaku; single-site keyword crawler)"
	DefaultRobotsPrimaryUA   = "tansaku"
	DefaultRobotsSecondaryUA = "googlebot"
	DefaultOutputDir         = "crawler_output"
)

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    10 * time.Second,
	}
}

func NewConfiguration(seedURL string, budget int, keywords []string) *Configuration {
	return &Configuration{
		SeedURL:           seedURL,
		Budget:            budget,
		Keywords:          keywords,
		Delay:             DefaultDelay,
		Timeout:           DefaultTimeout,
		Retry:             DefaultRetryPolicy(),
		MaxBodySize:       DefaultMaxBodySize,
		UserAgent:         DefaultUserAgent,
		RobotsPrimaryUA:   DefaultRobotsPrimaryUA,
		RobotsSecondaryUA: DefaultRobotsSecondaryUA,
		OutputDir:         DefaultOutputDir,
		Sleeper:           SleepContext,
		Options:           make(map[string]interface{}),
	}
}

// クロール開始前に設定を検証する。問題があれば*ConfigurationErrorを返す
func (c *Configuration) Validate() error {
	if len(strings.TrimSpace(c.SeedURL)) == 0 {
		return &ConfigurationError{Field: "seed_url", Reason: "must not be empty"}
	}

	if _, err := www.Normalize(c.SeedURL); err != nil {
		return &ConfigurationError{Field: "seed_url", Value: c.SeedURL, Reason: err.Error()}
	}

	if c.Budget <= 0 {
		return &ConfigurationError{Field: "budget", Value: strconv.Itoa(c.Budget), Reason: "must be a positive integer"}
	}

	for _, kw := range c.Keywords {
		if len(kw) == 0 || kw != strings.TrimSpace(kw) {
			return &ConfigurationError{Field: "keywords", Value: kw, Reason: "must be non-empty and trimmed"}
		}
	}

	if c.Delay < 0 {
		return &ConfigurationError{Field: "delay", Value: c.Delay.String(), Reason: "must not be negative"}
	}

	if c.Timeout <= 0 {
		return &ConfigurationError{Field: "timeout", Value: c.Timeout.String(), Reason: "must be positive"}
	}

	if c.Retry.MaxAttempts < 1 {
		return &ConfigurationError{Field: "retry.max_attempts", Value: strconv.Itoa(c.Retry.MaxAttempts), Reason: "must be at least 1"}
	}

	if c.Retry.BaseDelay < 0 || c.Retry.MaxDelay < c.Retry.BaseDelay {
		return &ConfigurationError{Field: "retry", Value: c.Retry.BaseDelay.String() + "/" + c.Retry.MaxDelay.String(), Reason: "delays must satisfy 0 <= base <= max"}
	}

	if c.MaxBodySize <= 0 {
		return &ConfigurationError{Field: "max_body_size", Value: strconv.FormatInt(c.MaxBodySize, 10), Reason: "must be positive"}
	}

	if len(c.OutputDir) == 0 {
		return &ConfigurationError{Field: "output_dir", Reason: "must not be empty"}
	}

	if c.Sleeper == nil {
		return &ConfigurationError{Field: "sleeper", Reason: "must be set"}
	}

	if c.URLFrontierProvider == nil || c.PolitenessGuardProvider == nil || c.FetcherProvider == nil ||
		c.PageProcessorProvider == nil || c.ResultStoreProvider == nil {
		return &ConfigurationError{Field: "providers", Reason: "all component providers must be set"}
	}

	return nil
}

func (c *Configuration) OptionAsString(key string) *string {
	option, exists := c.Options[key]
	if !exists {
		return nil
	}

	str, ok := option.(string)
	if !ok {
		return nil
	}

	return &str
}

func (c *Configuration) MustOptionAsString(key string) string {
	str := c.OptionAsString(key)
	if str == nil {
		panic(xerrors.Errorf("required option: '%s' was NOT set", key))
	}

	return *str
}

// ページ数の上限を文字列から解釈する
func ParseBudget(s string) (int, error) {
	budget, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, &ConfigurationError{Field: "budget", Value: s, Reason: "must be an integer"}
	}

	if budget <= 0 {
		return 0, &ConfigurationError{Field: "budget", Value: s, Reason: "must be a positive integer"}
	}

	return budget, nil
}

// カンマ区切りのキーワードを解釈する。前後の空白は除き、空のものは捨てる
func ParseKeywords(s string) []string {
	keywords := make([]string, 0)
	for _, kw := range strings.Split(s, ",") {
		kw = strings.TrimSpace(kw)
		if len(kw) > 0 {
			keywords = append(keywords, kw)
		}
	}

	return keywords
}

// デフォルトのSleeper
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
