package artifact_gatherer

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"golang.org/x/xerrors"

	"github.com/murakmii/tansaku/pkg/tansaku"
)

type basicMockArtifactStorage struct {
	m      sync.Mutex
	putted map[string][]byte
	fail   bool
}

func newBasicMockArtifactStorage() *basicMockArtifactStorage {
	return &basicMockArtifactStorage{putted: make(map[string][]byte)}
}

func (s *basicMockArtifactStorage) put(_ context.Context, key string, data []byte) error {
	s.m.Lock()
	defer s.m.Unlock()

	if s.fail {
		return xerrors.New("storage is unavailable")
	}

	s.putted[key] = data
	return nil
}

func (s *basicMockArtifactStorage) keys() []string {
	keys := make([]string, 0, len(s.putted))
	for key := range s.putted {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func buildArtifactGatherer() (*builtInArtifactGatherer, *basicMockArtifactStorage) {
	storage := newBasicMockArtifactStorage()

	return &builtInArtifactGatherer{
		storage:     storage,
		prefix:      "test",
		concurrency: 2,
	}, storage
}

func buildReport(t *testing.T) *tansaku.Report {
	t.Helper()

	dir := t.TempDir()
	files := make([]string, 0)
	for _, name := range []string{"pages.csv", "images.csv"} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(name+"\n"), 0644); err != nil {
			t.Fatalf("failed to write %s: %v", path, err)
		}
		files = append(files, path)
	}

	return &tansaku.Report{
		Summary: &tansaku.Summary{
			SessionID:    "sid",
			SeedURL:      "https://example.com/",
			PagesVisited: 2,
			StartedAt:    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		},
		Files: files,
	}
}

func TestBuiltInArtifactGatherer_Export(t *testing.T) {
	ctx := tansaku.MustRootContext(tansaku.NewConfiguration("https://example.com/", 1, nil))

	t.Run("ファイルと要約をアップロードする", func(t *testing.T) {
		gatherer, storage := buildArtifactGatherer()
		if err := gatherer.Export(ctx, buildReport(t)); err != nil {
			t.Fatalf("Export() = %v", err)
		}

		want := []string{
			"test/2024-01-02-03-04/sid/images.csv",
			"test/2024-01-02-03-04/sid/pages.csv",
			"test/2024-01-02-03-04/sid/summary.json",
		}

		got := storage.keys()
		if len(got) != len(want) {
			t.Fatalf("Export() uploaded %v, want = %v", got, want)
		}

		for i := range want {
			if got[i] != want[i] {
				t.Errorf("Export() uploaded %v, want = %v", got, want)
				break
			}
		}

		if string(storage.putted[want[1]]) != "pages.csv\n" {
			t.Errorf("Export() uploaded %q, want = %q", storage.putted[want[1]], "pages.csv\n")
		}

		summary := &tansaku.Summary{}
		if err := json.Unmarshal(storage.putted[want[2]], summary); err != nil || summary.PagesVisited != 2 {
			t.Errorf("Export() uploaded invalid summary: %s", storage.putted[want[2]])
		}
	})

	t.Run("アップロードに失敗した場合、エラーを返す", func(t *testing.T) {
		gatherer, storage := buildArtifactGatherer()
		storage.fail = true

		if err := gatherer.Export(ctx, buildReport(t)); err == nil {
			t.Errorf("Export() = nil, want = error")
		}
	})

	t.Run("ファイルを読めない場合、エラーを返す", func(t *testing.T) {
		gatherer, _ := buildArtifactGatherer()
		report := buildReport(t)
		report.Files = append(report.Files, filepath.Join(t.TempDir(), "missing.csv"))

		if err := gatherer.Export(ctx, report); err == nil {
			t.Errorf("Export() = nil, want = error")
		}
	})
}
