package tansaku

import (
	"context"

	"github.com/murakmii/tansaku/pkg/tansaku/www"
)

// あるページから発生したURLを表す型
type SpawnedURL struct {
	From    *www.NormalizedURL
	Spawned []*www.NormalizedURL
}

// 処理して得られた結果の収集を行うためのパイプラインの実装を要求するinterface
type OutputPipeline interface {
	// 結果の収集。ここで与えられた結果がResultStoreに渡される
	OutputArtifact(ctx context.Context, artifact *PageArtifact)

	// ページから発生したURLの収集。対象範囲内のURLが優先度付きでURLFrontierに渡される
	OutputCollectedURL(ctx context.Context, spawned *SpawnedURL)
}

// セッションのループと同期して動作するOutputPipelineの実装
type outputPipelineImpl struct {
	seed     *www.NormalizedURL
	keywords []string
	guard    PolitenessGuard
	frontier URLFrontier
	store    ResultStore
}

func newOutputPipeline(session *CrawlSession) OutputPipeline {
	return &outputPipelineImpl{
		seed:     session.seed,
		keywords: session.conf.Keywords,
		guard:    session.guard,
		frontier: session.frontier,
		store:    session.store,
	}
}

func (out *outputPipelineImpl) OutputArtifact(ctx context.Context, artifact *PageArtifact) {
	if err := out.store.Collect(ctx, artifact); err != nil {
		LoggerFromContext(ctx).Warnf("failed to collect artifact of %s: %v", artifact.URL, err)
	}
}

func (out *outputPipelineImpl) OutputCollectedURL(ctx context.Context, spawned *SpawnedURL) {
	logger := LoggerFromContext(ctx)

	enqueued := 0
	for _, url := range spawned.Spawned {
		if !out.guard.InScope(url, out.seed) {
			continue
		}

		priority := www.Classify(url, out.seed, out.keywords)
		if priority == www.OutOfScope {
			continue
		}

		if out.frontier.Enqueue(ctx, url, priority) {
			enqueued++
			logger.Debugf("enqueued(%s): %s", priority, url)
		}
	}

	logger.Debugf("%d/%d url(s) enqueued from %s", enqueued, len(spawned.Spawned), spawned.From)
}
