package main

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"golang.org/x/xerrors"

	"github.com/murakmii/tansaku/pkg/tansaku"
)

func TestLoadConfig(t *testing.T) {
	t.Run("設定ファイルの内容がConfigurationに反映される", func(t *testing.T) {
		c, err := loadConfig("testdata/config.yml", true)
		if err != nil {
			t.Fatalf("loadConfig() = %v", err)
		}

		conf := c.buildConfiguration()

		if conf.SeedURL != "https://example.com/shop/" {
			t.Errorf("SeedURL = %s, want = https://example.com/shop/", conf.SeedURL)
		}

		if conf.Budget != 20 {
			t.Errorf("Budget = %d, want = 20", conf.Budget)
		}

		if !reflect.DeepEqual(conf.Keywords, []string{"products", "sale"}) {
			t.Errorf("Keywords = %v, want = [products sale]", conf.Keywords)
		}

		if conf.Delay != 2*time.Second {
			t.Errorf("Delay = %v, want = 2s", conf.Delay)
		}

		if conf.Retry.MaxAttempts != 5 {
			t.Errorf("Retry.MaxAttempts = %d, want = 5", conf.Retry.MaxAttempts)
		}

		if conf.RobotsPrimaryUA != "mybot" || conf.RobotsSecondaryUA != tansaku.DefaultRobotsSecondaryUA {
			t.Errorf("robots ua = (%s, %s), want = (mybot, %s)", conf.RobotsPrimaryUA, conf.RobotsSecondaryUA, tansaku.DefaultRobotsSecondaryUA)
		}

		if conf.OutputDir != "/tmp/tansaku_output" {
			t.Errorf("OutputDir = %s, want = /tmp/tansaku_output", conf.OutputDir)
		}

		if len(conf.ExporterProviders) != 2 {
			t.Errorf("len(ExporterProviders) = %d, want = 2", len(conf.ExporterProviders))
		}

		if conf.TracerProvider != nil {
			t.Errorf("TracerProvider is set, want = nil")
		}

		if driver := conf.MustOptionAsString("built_in.result_store.sql_driver"); driver != "sqlite3" {
			t.Errorf("sql_driver = %s, want = sqlite3", driver)
		}

		if err = conf.Validate(); err != nil {
			t.Errorf("Validate() = %v, want = nil", err)
		}
	})

	t.Run("デフォルトの場所にファイルが無ければ空の設定になる", func(t *testing.T) {
		c, err := loadConfig(filepath.Join(t.TempDir(), "config.yml"), false)
		if err != nil {
			t.Fatalf("loadConfig() = %v", err)
		}

		conf := c.buildConfiguration()

		if conf.Budget != tansaku.DefaultBudget {
			t.Errorf("Budget = %d, want = %d", conf.Budget, tansaku.DefaultBudget)
		}

		if conf.OutputDir != tansaku.DefaultOutputDir {
			t.Errorf("OutputDir = %s, want = %s", conf.OutputDir, tansaku.DefaultOutputDir)
		}

		if conf.Keywords == nil || len(conf.Keywords) != 0 {
			t.Errorf("Keywords = %v, want = []", conf.Keywords)
		}

		if len(conf.ExporterProviders) != 0 {
			t.Errorf("len(ExporterProviders) = %d, want = 0", len(conf.ExporterProviders))
		}
	})

	t.Run("明示的に指定されたファイルが無ければエラー", func(t *testing.T) {
		if _, err := loadConfig(filepath.Join(t.TempDir(), "config.yml"), true); err == nil {
			t.Errorf("loadConfig() = nil, want = error")
		}
	})

	t.Run("明示的に書かれた0はデフォルト値で上書きしない", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yml")
		content := "crawling:\n  url: http://example.com/\n  max_pages: 0\n  delay: 0s\n"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}

		c, err := loadConfig(path, true)
		if err != nil {
			t.Fatalf("loadConfig() = %v", err)
		}

		conf := c.buildConfiguration()
		if conf.Delay != 0 {
			t.Errorf("Delay = %v, want = 0s", conf.Delay)
		}

		if conf.Budget != 0 {
			t.Errorf("Budget = %d, want = 0", conf.Budget)
		}

		var confErr *tansaku.ConfigurationError
		if err = conf.Validate(); !xerrors.As(err, &confErr) || confErr.Field != "budget" {
			t.Errorf("Validate() = %v, want = ConfigurationError(budget)", err)
		}
	})

	t.Run("delayに0を書いた場合は間隔なしで有効", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yml")
		content := "crawling:\n  url: http://example.com/\n  delay: 0s\n"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}

		c, err := loadConfig(path, true)
		if err != nil {
			t.Fatalf("loadConfig() = %v", err)
		}

		conf := c.buildConfiguration()
		if conf.Delay != 0 || conf.Budget != tansaku.DefaultBudget {
			t.Errorf("(Delay, Budget) = (%v, %d), want = (0s, %d)", conf.Delay, conf.Budget, tansaku.DefaultBudget)
		}

		if err = conf.Validate(); err != nil {
			t.Errorf("Validate() = %v, want = nil", err)
		}
	})

	t.Run("JSONでも書ける", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		if err := os.WriteFile(path, []byte(`{"crawling": {"url": "http://example.com", "max_pages": 3}}`), 0644); err != nil {
			t.Fatal(err)
		}

		c, err := loadConfig(path, true)
		if err != nil {
			t.Fatalf("loadConfig() = %v", err)
		}

		conf := c.buildConfiguration()
		if conf.SeedURL != "http://example.com" || conf.Budget != 3 {
			t.Errorf("(SeedURL, Budget) = (%s, %d), want = (http://example.com, 3)", conf.SeedURL, conf.Budget)
		}
	})
}
