package tansaku

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"github.com/murakmii/tansaku/pkg/tansaku/www"
)

type SessionState int

const (
	StateReady SessionState = iota
	StateRunning
	StateDone
)

func (s SessionState) String() string {
	switch s {
	case StateReady:
		return "READY"
	case StateRunning:
		return "RUNNING"
	default:
		return "DONE"
	}
}

// 1回分のクロールを表す型
// フロンティア、訪問済み集合、結果の集合はこのセッションのループだけが触る
type CrawlSession struct {
	id    string
	conf  *Configuration
	seed  *www.NormalizedURL
	state SessionState

	frontier  URLFrontier
	guard     PolitenessGuard
	fetcher   Fetcher
	processor PageProcessor
	store     ResultStore
	exporters []Exporter

	startedAt  time.Time
	finishedAt time.Time
}

// 設定を検証し、各コンポーネントを生成してREADYなセッションを返す
func NewSession(ctx context.Context, conf *Configuration) (*CrawlSession, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	seed, err := www.Normalize(conf.SeedURL)
	if err != nil {
		return nil, &ConfigurationError{Field: "seed_url", Value: conf.SeedURL, Reason: err.Error()}
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return nil, xerrors.Errorf("failed to generate session id: %w", err)
	}

	s := &CrawlSession{
		id:    id.String(),
		conf:  conf,
		seed:  seed,
		state: StateReady,
	}

	if err = s.setupComponents(ctx); err != nil {
		_ = s.Finish()
		return nil, err
	}

	return s, nil
}

func (s *CrawlSession) setupComponents(ctx context.Context) error {
	var err error

	if s.frontier, err = s.conf.URLFrontierProvider(ComponentContext(ctx, "url-frontier"), s.conf); err != nil {
		return xerrors.Errorf("failed to setup url frontier: %w", err)
	}

	if s.guard, err = s.conf.PolitenessGuardProvider(ComponentContext(ctx, "politeness-guard"), s.conf); err != nil {
		return xerrors.Errorf("failed to setup politeness guard: %w", err)
	}

	if s.fetcher, err = s.conf.FetcherProvider(ComponentContext(ctx, "fetcher"), s.conf); err != nil {
		return xerrors.Errorf("failed to setup fetcher: %w", err)
	}

	if s.processor, err = s.conf.PageProcessorProvider(ComponentContext(ctx, "page-processor"), s.conf); err != nil {
		return xerrors.Errorf("failed to setup page processor: %w", err)
	}

	if s.store, err = s.conf.ResultStoreProvider(ComponentContext(ctx, "result-store"), s.conf); err != nil {
		return xerrors.Errorf("failed to setup result store: %w", err)
	}

	for _, provider := range s.conf.ExporterProviders {
		exporter, err := provider(ComponentContext(ctx, "exporter"), s.conf)
		if err != nil {
			return xerrors.Errorf("failed to setup exporter: %w", err)
		}
		s.exporters = append(s.exporters, exporter)
	}

	return nil
}

func (s *CrawlSession) ID() string {
	return s.id
}

func (s *CrawlSession) State() SessionState {
	return s.state
}

// クロールを実行する。ページ数の上限に達するか、フロンティアが空になるとDONEになる
// contextがキャンセルされた場合もDONEになり、エラーを返す
func (s *CrawlSession) Run(ctx context.Context) (*Summary, error) {
	if s.state != StateReady {
		return nil, ErrSessionNotReady
	}

	ctx = SessionContext(ctx, s.id)
	logger := LoggerFromContext(ctx)

	s.state = StateRunning
	s.startedAt = time.Now()
	logger.Infof("started crawl from %s (budget: %d, keywords: %v)", s.seed, s.conf.Budget, s.conf.Keywords)

	s.frontier.Enqueue(ctx, s.seed, www.High)
	if err := s.guard.LoadPolicy(ComponentContext(ctx, "politeness-guard"), s.seed); err != nil {
		logger.Warnf("%v", err)
	}

	out := newOutputPipeline(s)

	var err error
	for !s.frontier.IsDone(s.frontier.VisitedCount(), s.conf.Budget) {
		if ctx.Err() != nil {
			err = xerrors.Errorf("crawl interrupted: %w", ctx.Err())
			break
		}

		url, ok := s.frontier.Dequeue(ctx)
		if !ok {
			break
		}

		if s.frontier.IsVisited(url) {
			continue
		}

		if !s.guard.CanFetch(ctx, url) {
			logger.WithField("url", url.String()).Infof("skipped: %v", ErrRobotsDisallowed)
			continue
		}

		if !s.crawl(ctx, url, out) {
			continue
		}

		if s.frontier.IsDone(s.frontier.VisitedCount(), s.conf.Budget) {
			break
		}

		if sleepErr := s.conf.Sleeper(ctx, s.conf.Delay); sleepErr != nil {
			err = xerrors.Errorf("crawl interrupted: %w", sleepErr)
			break
		}
	}

	s.state = StateDone
	s.finishedAt = time.Now()

	summary := s.Summary()
	logger.WithFields(map[string]interface{}{
		"visited":  summary.PagesVisited,
		"links":    summary.LinksFound,
		"images":   summary.ImagesFound,
		"keywords": summary.KeywordMatches,
	}).Info("finished crawl")

	return summary, err
}

// 1ページ分のクロール。取得できた場合のみtrueを返し、その場合だけページ数の上限を消費する
func (s *CrawlSession) crawl(ctx context.Context, url *www.NormalizedURL, out OutputPipeline) bool {
	logger := LoggerFromContext(ctx).WithField("url", url.String())
	ctx = ContextWithLogger(ctx, logger)

	page, err := s.fetcher.Fetch(ComponentContext(ctx, "fetcher"), url)
	TracerFromContext(ctx).TraceCrawled(ctx, err)
	if err != nil {
		if !xerrors.Is(err, context.Canceled) {
			logger.Warnf("skipped: %v", err)
		}
		return false
	}

	s.frontier.MarkVisited(url)
	logger.Infof("crawled (%d/%d)", s.frontier.VisitedCount(), s.conf.Budget)

	artifact, err := s.processor.Process(ComponentContext(ctx, "page-processor"), page, s.seed, s.conf.Keywords)
	if err != nil {
		logger.Warnf("failed to process page: %v", err)
		return true
	}

	out.OutputArtifact(ctx, artifact)
	out.OutputCollectedURL(ctx, &SpawnedURL{From: url, Spawned: artifact.Links})

	return true
}

// 結果を保存する
func (s *CrawlSession) Persist(ctx context.Context) ([]string, error) {
	return s.store.Persist(SessionContext(ComponentContext(ctx, "result-store"), s.id))
}

// 保存した結果を各Exporterに送る
func (s *CrawlSession) Export(ctx context.Context, files []string) error {
	report := &Report{Summary: s.Summary(), Files: files}

	for _, exporter := range s.exporters {
		if err := exporter.Export(SessionContext(ComponentContext(ctx, "exporter"), s.id), report); err != nil {
			return err
		}
	}

	return nil
}

func (s *CrawlSession) Summary() *Summary {
	counts := s.store.Counts()

	return &Summary{
		SessionID:      s.id,
		SeedURL:        s.seed.String(),
		Budget:         s.conf.Budget,
		PagesVisited:   s.frontier.VisitedCount(),
		LinksFound:     counts.Pages,
		ImagesFound:    counts.Images,
		KeywordMatches: counts.KeywordMatches,
		StartedAt:      s.startedAt,
		FinishedAt:     s.finishedAt,
	}
}

// 次のクロールに備えて全ての状態を破棄し、READYに戻す
func (s *CrawlSession) Reset() error {
	if s.state == StateRunning {
		return xerrors.New("can't reset running session")
	}

	if err := s.frontier.Reset(); err != nil {
		return xerrors.Errorf("failed to reset by frontier: %w", err)
	}

	if err := s.guard.Reset(); err != nil {
		return xerrors.Errorf("failed to reset by politeness guard: %w", err)
	}

	if err := s.store.Reset(); err != nil {
		return xerrors.Errorf("failed to reset by result store: %w", err)
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return xerrors.Errorf("failed to generate session id: %w", err)
	}

	s.id = id.String()
	s.state = StateReady
	s.startedAt = time.Time{}
	s.finishedAt = time.Time{}
	return nil
}

// 各コンポーネントの終了処理を行う
func (s *CrawlSession) Finish() error {
	owners := []Finisher{s.fetcher, s.processor, s.guard, s.frontier, s.store}
	for _, exporter := range s.exporters {
		owners = append(owners, exporter)
	}

	var firstErr error
	for _, owner := range owners {
		if owner == nil {
			continue
		}

		if err := owner.Finish(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}
