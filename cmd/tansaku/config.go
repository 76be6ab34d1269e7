package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"

	"github.com/murakmii/tansaku/pkg/tansaku"
	"github.com/murakmii/tansaku/pkg/tansaku/artifact_gatherer"
	"github.com/murakmii/tansaku/pkg/tansaku/fetcher"
	"github.com/murakmii/tansaku/pkg/tansaku/processor"
	"github.com/murakmii/tansaku/pkg/tansaku/publisher"
	"github.com/murakmii/tansaku/pkg/tansaku/result_store"
	"github.com/murakmii/tansaku/pkg/tansaku/robots"
	"github.com/murakmii/tansaku/pkg/tansaku/tracer"
	"github.com/murakmii/tansaku/pkg/tansaku/url_frontier"
)

// 設定ファイルの内容。YAMLはJSONの上位互換なのでJSONでも書ける
type config struct {
	DebugLevelLogging bool `yaml:"debug_level_logging"`
	JSONLogging       bool `yaml:"json_logging"`

	Crawling crawlingConfig `yaml:"crawling"`
	Output   outputConfig   `yaml:"output"`
	Aws      awsConfig      `yaml:"aws"`
	Artifact artifactConfig `yaml:"artifact"`
	Publish  publishConfig  `yaml:"publish"`
	Tracer   tracerConfig   `yaml:"tracer"`
}

// 数値の項目は、省略された場合と0が書かれた場合を区別するためポインタで持つ
type crawlingConfig struct {
	URL         string         `yaml:"url"`
	MaxPages    *int           `yaml:"max_pages"`
	Keywords    []string       `yaml:"keywords"`
	Delay       *time.Duration `yaml:"delay"`
	Timeout     *time.Duration `yaml:"timeout"`
	MaxAttempts *int           `yaml:"max_attempts"`
	HeaderUA    string         `yaml:"header_ua"`
	PrimaryUA   string         `yaml:"primary_ua"`
	SecondaryUA string         `yaml:"secondary_ua"`
}

type outputConfig struct {
	Dir       string `yaml:"dir"`
	SQLDriver string `yaml:"sql_driver"`
	SQLSource string `yaml:"sql_source"`
}

type awsConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	S3EndPoint      string `yaml:"s3_endpoint"`
}

type artifactConfig struct {
	Bucket    string `yaml:"bucket"`
	KeyPrefix string `yaml:"key_prefix"`
}

type publishConfig struct {
	RedisURL string `yaml:"redis_url"`
	Channel  string `yaml:"channel"`
}

type tracerConfig struct {
	Namespace      string `yaml:"namespace"`
	DimensionName  string `yaml:"dimension_name"`
	DimensionValue string `yaml:"dimension_value"`
}

// 設定ファイルのデフォルトの場所
func defaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, "tansaku", "config.yml")
}

// 設定ファイルを読み込む。明示的に指定されなかったデフォルトの場所にファイルが無い場合は空の設定を返す
func loadConfig(path string, explicit bool) (*config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if !explicit && os.IsNotExist(err) {
			return &config{}, nil
		}
		return nil, xerrors.Errorf("failed to read configuration file: %w", err)
	}

	c := &config{}
	if err = yaml.Unmarshal(content, c); err != nil {
		return nil, xerrors.Errorf("failed to parse configuration file: %w", err)
	}

	return c, nil
}

// Configuration生成
func (c *config) buildConfiguration() *tansaku.Configuration {
	budget := tansaku.DefaultBudget
	if c.Crawling.MaxPages != nil {
		budget = *c.Crawling.MaxPages
	}

	keywords := c.Crawling.Keywords
	if keywords == nil {
		keywords = make([]string, 0)
	}

	conf := tansaku.NewConfiguration(c.Crawling.URL, budget, keywords)
	conf.DebugLevelLogging = c.DebugLevelLogging
	conf.JSONLogging = c.JSONLogging

	if c.Crawling.Delay != nil {
		conf.Delay = *c.Crawling.Delay
	}
	if c.Crawling.Timeout != nil {
		conf.Timeout = *c.Crawling.Timeout
	}
	if c.Crawling.MaxAttempts != nil {
		conf.Retry.MaxAttempts = *c.Crawling.MaxAttempts
	}
	if len(c.Crawling.HeaderUA) > 0 {
		conf.UserAgent = c.Crawling.HeaderUA
	}
	if len(c.Crawling.PrimaryUA) > 0 {
		conf.RobotsPrimaryUA = c.Crawling.PrimaryUA
	}
	if len(c.Crawling.SecondaryUA) > 0 {
		conf.RobotsSecondaryUA = c.Crawling.SecondaryUA
	}
	if len(c.Output.Dir) > 0 {
		conf.OutputDir = c.Output.Dir
	}

	conf.AwsRegion = c.Aws.Region
	conf.AwsAccessKeyID = c.Aws.AccessKeyID
	conf.AwsSecretAccessKey = c.Aws.SecretAccessKey
	if len(c.Aws.S3EndPoint) > 0 {
		conf.Options["built_in.aws.s3_endpoint"] = c.Aws.S3EndPoint
	}

	conf.URLFrontierProvider = url_frontier.BuiltInURLFrontierProvider
	conf.PolitenessGuardProvider = robots.BuiltInPolitenessGuardProvider
	conf.FetcherProvider = fetcher.BuiltInFetcherProvider
	conf.PageProcessorProvider = processor.BuiltInPageProcessorProvider
	conf.ResultStoreProvider = result_store.BuiltInResultStoreProvider

	if len(c.Output.SQLDriver) > 0 {
		conf.Options["built_in.result_store.sql_driver"] = c.Output.SQLDriver
		conf.Options["built_in.result_store.sql_source"] = c.Output.SQLSource
	}

	if len(c.Artifact.Bucket) > 0 {
		conf.ExporterProviders = append(conf.ExporterProviders, artifact_gatherer.BuiltInArtifactGathererProvider)
		conf.Options["built_in.artifact_gatherer.bucket"] = c.Artifact.Bucket
		conf.Options["built_in.artifact_gatherer.gathered_item_prefix"] = c.Artifact.KeyPrefix
	}

	if len(c.Publish.RedisURL) > 0 {
		conf.ExporterProviders = append(conf.ExporterProviders, publisher.BuiltInPublisherProvider)
		conf.Options["built_in.redis_url"] = c.Publish.RedisURL
		if len(c.Publish.Channel) > 0 {
			conf.Options["built_in.publisher.channel"] = c.Publish.Channel
		}
	}

	if len(c.Tracer.Namespace) > 0 {
		conf.TracerProvider = tracer.NewMetricsTracer
		conf.Options["built_in.tracer.namespace"] = c.Tracer.Namespace
		conf.Options["built_in.tracer.dimension_name"] = c.Tracer.DimensionName
		conf.Options["built_in.tracer.dimension_value"] = c.Tracer.DimensionValue
	}

	return conf
}
