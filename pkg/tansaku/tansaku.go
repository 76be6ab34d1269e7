package tansaku

import (
	"context"
	"time"

	"golang.org/x/xerrors"

	"github.com/murakmii/tansaku/pkg/tansaku/www"
)

// 何らかの終了処理表すFinishメソッドの実装を要求するinterface
type Finisher interface {
	Finish() error
}

// 取得できたページ
type FetchedPage struct {
	URL         *www.NormalizedURL
	StatusCode  int
	ContentType string
	Body        []byte
	Elapsed     float64
}

// 1ページの処理から得られた結果
type PageArtifact struct {
	URL      *www.NormalizedURL
	Links    []*www.NormalizedURL
	Images   []string
	Keywords []string
}

// クロール対象となるURLの集合と、訪問済みURLの集合を扱うための実装を要求するinterface
type URLFrontier interface {
	Finisher

	// URLを指定の優先度で追加する。訪問済み、もしくは既に追加済みのURLなら何もせずfalseを返す
	Enqueue(ctx context.Context, url *www.NormalizedURL, priority www.Priority) bool

	// 次のURLを取り出す。Highの層をLowの層より先に、各層の中では追加順に取り出す。空ならfalseを返す
	Dequeue(ctx context.Context) (*www.NormalizedURL, bool)

	MarkVisited(url *www.NormalizedURL)
	IsVisited(url *www.NormalizedURL) bool
	VisitedCount() int

	// 取り出されていないURLの数
	Len() int

	// 訪問数が上限に達したか、取り出すURLが無ければtrueを返す
	IsDone(visitedCount, budget int) bool

	// クロール中に発生したデータをリセットし、次のクロール開始に備える
	Reset() error
}

// robots.txtによるクロール可否と、クロール対象範囲の判定の実装を要求するinterface
type PolitenessGuard interface {
	Finisher

	// シードのオリジンのrobots.txtを取得する
	// 取得、解釈できない場合は全て許可として扱い、*PolicyLoadErrorを返すこと
	LoadPolicy(ctx context.Context, seed *www.NormalizedURL) error

	CanFetch(ctx context.Context, url *www.NormalizedURL) bool
	InScope(url, seed *www.NormalizedURL) bool

	Reset() error
}

// ページ取得の実装を要求するinterface
type Fetcher interface {
	Finisher

	// 再試行を使い切っても取得できなければ*FetchErrorを返すこと
	Fetch(ctx context.Context, url *www.NormalizedURL) (*FetchedPage, error)
}

// 取得したページからリンク、画像、キーワードを抽出する実装を要求するinterface
type PageProcessor interface {
	Finisher

	Process(ctx context.Context, page *FetchedPage, seed *www.NormalizedURL, keywords []string) (*PageArtifact, error)
}

// 結果の件数
type ResultCounts struct {
	Pages          int
	Links          int
	Images         int
	KeywordMatches int
}

// クロール中に得られた結果の収集と保存の実装を要求するinterface
type ResultStore interface {
	Finisher

	// 結果を収集する
	Collect(ctx context.Context, artifact *PageArtifact) error

	// 収集した結果を決定的な順序で保存し、書き出したファイルのパスを返す
	Persist(ctx context.Context) ([]string, error)

	Counts() ResultCounts

	// メモリ上の結果を破棄する
	Reset() error

	// 保存済みの結果を削除する
	Purge(ctx context.Context) error
}

// クロール完了後に結果を外部へ送る実装を要求するinterface
type Exporter interface {
	Finisher

	Export(ctx context.Context, report *Report) error
}

// Exporterに渡される内容
type Report struct {
	Summary *Summary
	Files   []string
}

// クロール中の動作状況をトレースするトレーサーの実装を要求するinterface
type Tracer interface {
	Finisher

	// 1ページの取得を終えるごとに呼び出される
	TraceCrawled(ctx context.Context, err error)

	// 1 HTTP GET完了するごとに呼び出される
	TraceGetRequest(ctx context.Context, elapsed float64)
}

// 何もしないデフォルトのトレーサーを実装しておく
type NullTracer struct{}

func NewNullTracer() Tracer                                       { return NullTracer{} }
func (t NullTracer) TraceCrawled(_ context.Context, _ error)      {}
func (t NullTracer) TraceGetRequest(_ context.Context, _ float64) {}
func (t NullTracer) Finish() error                                { return nil }

// 指定の設定に基づいてクロールし、結果を保存、送信する
func Start(conf *Configuration) (*Summary, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	ctx, err := RootContext(conf)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := TracerFromContext(ctx).Finish(); err != nil {
			LoggerFromContext(ctx).Warnf("failed to finish tracer: %v", err)
		}
	}()

	session, err := NewSession(ctx, conf)
	if err != nil {
		return nil, err
	}
	defer session.Finish()

	summary, runErr := session.Run(ctx)

	// 中断された場合でも、それまでの結果は保存する
	files, err := session.Persist(context.WithoutCancel(ctx))
	if err != nil {
		return summary, xerrors.Errorf("failed to persist results: %w", err)
	}

	if err = session.Export(context.WithoutCancel(ctx), files); err != nil {
		return summary, xerrors.Errorf("failed to export results: %w", err)
	}

	return summary, runErr
}

// 保存済みの結果を削除する
func Reset(conf *Configuration) error {
	ctx, err := RootContext(conf)
	if err != nil {
		return err
	}

	store, err := conf.ResultStoreProvider(ComponentContext(ctx, "result-store"), conf)
	if err != nil {
		return xerrors.Errorf("failed to setup result store: %w", err)
	}

	if err = store.Purge(ctx); err != nil {
		_ = store.Finish()
		return xerrors.Errorf("failed to purge results: %w", err)
	}

	return store.Finish()
}

// セッションの要約
type Summary struct {
	SessionID      string    `json:"session_id"`
	SeedURL        string    `json:"seed_url"`
	Budget         int       `json:"budget"`
	PagesVisited   int       `json:"pages_visited"`
	LinksFound     int       `json:"links_found"`
	ImagesFound    int       `json:"images_found"`
	KeywordMatches int       `json:"keyword_matches"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}
