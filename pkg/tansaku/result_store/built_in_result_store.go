package result_store

import (
	"context"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"golang.org/x/xerrors"

	"github.com/murakmii/tansaku/pkg/tansaku"
)

// (元URL, 先URL)の組
type record struct {
	source string
	target string
}

// 収集した結果をメモリ上に集合として持ち、CSV(と、設定されていればSQLのテーブル)に保存するResultStore
type builtInResultStore struct {
	outputDir string
	mirror    *sqlMirror

	targets  map[string]struct{}
	links    map[record]struct{}
	images   map[record]struct{}
	imageSet map[string]struct{}
	keywords map[string][]string
}

func BuiltInResultStoreProvider(ctx context.Context, conf *tansaku.Configuration) (tansaku.ResultStore, error) {
	store := newBuiltInResultStore(conf.OutputDir)

	mirror, err := newSQLMirrorFromConfiguration(ctx, conf)
	if err != nil {
		return nil, xerrors.Errorf("failed to setup sql mirror: %w", err)
	}
	store.mirror = mirror

	return store, nil
}

func newBuiltInResultStore(outputDir string) *builtInResultStore {
	s := &builtInResultStore{outputDir: outputDir}
	_ = s.Reset()
	return s
}

// リンクと画像は集合として、キーワードの一致はURL毎に1つだけ記録する
func (s *builtInResultStore) Collect(_ context.Context, artifact *tansaku.PageArtifact) error {
	if artifact == nil || artifact.URL == nil {
		return xerrors.New("artifact has no url")
	}

	source := artifact.URL.String()

	for _, link := range artifact.Links {
		target := link.String()
		s.targets[target] = struct{}{}
		s.links[record{source: source, target: target}] = struct{}{}
	}

	for _, image := range artifact.Images {
		s.imageSet[image] = struct{}{}
		s.images[record{source: source, target: image}] = struct{}{}
	}

	if len(artifact.Keywords) > 0 {
		keywords := make([]string, len(artifact.Keywords))
		copy(keywords, artifact.Keywords)
		s.keywords[source] = keywords
	}

	return nil
}

// 4つの表を出力先ディレクトリに書き出す。既存のファイルは上書きする
func (s *builtInResultStore) Persist(ctx context.Context) ([]string, error) {
	if err := os.MkdirAll(s.outputDir, 0755); err != nil {
		return nil, xerrors.Errorf("failed to create output directory: %w", err)
	}

	t := s.buildTables()
	outputs := []struct {
		name string
		rows interface{}
	}{
		{name: pagesFile, rows: &t.pages},
		{name: imagesFile, rows: &t.images},
		{name: keywordMatchesFile, rows: &t.keywordMatches},
		{name: allLinksFile, rows: &t.links},
	}

	files := make([]string, 0, len(outputs))
	for _, output := range outputs {
		path := filepath.Join(s.outputDir, output.name)
		if err := writeCSV(path, output.rows); err != nil {
			return nil, err
		}
		files = append(files, path)
	}

	if s.mirror != nil {
		if err := s.mirror.replace(ctx, t); err != nil {
			return nil, xerrors.Errorf("failed to mirror results: %w", err)
		}
	}

	tansaku.LoggerFromContext(ctx).Infof("persisted results into %s", s.outputDir)
	return files, nil
}

func (s *builtInResultStore) Counts() tansaku.ResultCounts {
	return tansaku.ResultCounts{
		Pages:          len(s.targets),
		Links:          len(s.links),
		Images:         len(s.imageSet),
		KeywordMatches: len(s.keywords),
	}
}

func (s *builtInResultStore) Reset() error {
	s.targets = make(map[string]struct{})
	s.links = make(map[record]struct{})
	s.images = make(map[record]struct{})
	s.imageSet = make(map[string]struct{})
	s.keywords = make(map[string][]string)
	return nil
}

// 書き出したファイルとSQLのテーブルの中身を削除する
func (s *builtInResultStore) Purge(ctx context.Context) error {
	for _, name := range []string{pagesFile, imagesFile, keywordMatchesFile, allLinksFile} {
		path := filepath.Join(s.outputDir, name)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return xerrors.Errorf("failed to remove %s: %w", path, err)
		}
	}

	if s.mirror != nil {
		if err := s.mirror.replace(ctx, &tables{}); err != nil {
			return xerrors.Errorf("failed to purge mirrored results: %w", err)
		}
	}

	return nil
}

func (s *builtInResultStore) Finish() error {
	if s.mirror != nil {
		return s.mirror.close()
	}

	return nil
}

func writeCSV(path string, rows interface{}) error {
	file, err := os.Create(path)
	if err != nil {
		return xerrors.Errorf("failed to create %s: %w", path, err)
	}

	if err = gocsv.MarshalFile(rows, file); err != nil {
		_ = file.Close()
		return xerrors.Errorf("failed to write %s: %w", path, err)
	}

	return file.Close()
}
