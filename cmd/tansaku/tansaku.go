package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rodaine/table"
	"github.com/urfave/cli"
	"golang.org/x/xerrors"

	"github.com/murakmii/tansaku/pkg/tansaku"
)

func main() {
	app := cli.NewApp()
	app.Name = "tansaku"
	app.Usage = "Crawl a single site and collect its links, images and keywords"
	app.UsageText = "tansaku [global options] command [arguments...]"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config,c",
			Usage: "configuration file `PATH` (default: $XDG_CONFIG_HOME/tansaku/config.yml)",
		},
	}

	app.Commands = []cli.Command{
		{
			Name:      "crawl",
			Usage:     "Start to crawl",
			UsageText: "tansaku [-c PATH] crawl --url URL [command options]",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "url,u",
					Usage: "seed `URL`",
				},
				cli.StringFlag{
					Name:  "max-pages,n",
					Usage: "maximum `NUMBER` of pages to visit",
				},
				cli.StringFlag{
					Name:  "keywords,k",
					Usage: "comma separated `KEYWORDS`",
				},
				cli.StringFlag{
					Name:  "out,o",
					Usage: "output `DIR`",
				},
				cli.DurationFlag{
					Name:  "delay",
					Usage: "politeness `DELAY` between requests",
				},
				cli.BoolFlag{
					Name:  "debug",
					Usage: "enable debug level logging",
				},
			},
			Action: crawlCommand,
		},
		{
			Name:      "reset",
			Usage:     "Remove saved results",
			UsageText: "tansaku [-c PATH] reset [--out DIR]",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "out,o",
					Usage: "output `DIR`",
				},
			},
			Action: resetCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "\nERROR DETECTED:\n   %v\n", err)
		os.Exit(1)
	}
}

// クロール開始コマンド
func crawlCommand(c *cli.Context) error {
	conf, err := buildConfiguration(c)
	if err != nil {
		return xerrors.Errorf("failed to load configuration: %w", err)
	}

	if c.IsSet("url") {
		conf.SeedURL = c.String("url")
	}
	if c.IsSet("max-pages") {
		if conf.Budget, err = tansaku.ParseBudget(c.String("max-pages")); err != nil {
			return err
		}
	}
	if c.IsSet("keywords") {
		conf.Keywords = tansaku.ParseKeywords(c.String("keywords"))
	}
	if c.IsSet("delay") {
		conf.Delay = c.Duration("delay")
	}
	if c.Bool("debug") {
		conf.DebugLevelLogging = true
	}

	summary, err := tansaku.Start(conf)
	if summary != nil {
		printSummary(summary, conf.OutputDir)
	}

	if err != nil {
		return xerrors.Errorf("failed to crawl: %w", err)
	}

	return nil
}

// データ初期化コマンド
func resetCommand(c *cli.Context) error {
	conf, err := buildConfiguration(c)
	if err != nil {
		return xerrors.Errorf("failed to load configuration: %w", err)
	}

	return tansaku.Reset(conf)
}

func buildConfiguration(c *cli.Context) (*tansaku.Configuration, error) {
	path := c.GlobalString("config")
	explicit := len(path) > 0
	if !explicit {
		path = defaultConfigPath()
	}

	content, err := loadConfig(path, explicit)
	if err != nil {
		return nil, err
	}

	conf := content.buildConfiguration()
	if c.IsSet("out") {
		conf.OutputDir = c.String("out")
	}

	return conf, nil
}

func printSummary(summary *tansaku.Summary, outputDir string) {
	tbl := table.New("Metric", "Value").WithWriter(os.Stdout)
	tbl.AddRow("Session", summary.SessionID)
	tbl.AddRow("Seed URL", summary.SeedURL)
	tbl.AddRow("Pages Visited", strconv.Itoa(summary.PagesVisited)+"/"+strconv.Itoa(summary.Budget))
	tbl.AddRow("Links Found", summary.LinksFound)
	tbl.AddRow("Images Found", summary.ImagesFound)
	tbl.AddRow("Keyword Matches", summary.KeywordMatches)
	tbl.AddRow("Elapsed", summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond))
	tbl.AddRow("Output", outputDir)
	tbl.Print()
}
