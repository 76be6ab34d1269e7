package artifact_gatherer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/murakmii/tansaku/pkg/tansaku"
)

// 保存先ストレージの詳細を抽象化しておく
type artifactStorage interface {
	put(ctx context.Context, key string, data []byte) error
}

// 保存された結果のファイルと要約をストレージにアップロードするExporter
type builtInArtifactGatherer struct {
	storage     artifactStorage
	prefix      string
	concurrency int
}

const (
	awsS3EndpointConfKey = "built_in.aws.s3_endpoint"
	keyPrefixConfKey     = "built_in.artifact_gatherer.gathered_item_prefix"
	bucketConfKey        = "built_in.artifact_gatherer.bucket"

	summaryFile = "summary.json"
)

// 新しいArtifactGathererをExporterとして生成する
func BuiltInArtifactGathererProvider(_ context.Context, conf *tansaku.Configuration) (tansaku.Exporter, error) {
	store, err := newS3StoreFromConfiguration(conf)
	if err != nil {
		return nil, err
	}

	return &builtInArtifactGatherer{
		storage:     store,
		prefix:      conf.MustOptionAsString(keyPrefixConfKey),
		concurrency: 4,
	}, nil
}

// ファイルを並行してアップロードする。1つでも失敗すればエラーを返す
func (ag *builtInArtifactGatherer) Export(ctx context.Context, report *tansaku.Report) error {
	summary, err := json.Marshal(report.Summary)
	if err != nil {
		return xerrors.Errorf("failed to marshal summary: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ag.concurrency)

	for _, file := range report.Files {
		file := file
		g.Go(func() error {
			data, err := os.ReadFile(file)
			if err != nil {
				return xerrors.Errorf("failed to read %s: %w", file, err)
			}

			return ag.upload(gctx, report.Summary, filepath.Base(file), data)
		})
	}

	g.Go(func() error {
		return ag.upload(gctx, report.Summary, summaryFile, summary)
	})

	if err = g.Wait(); err != nil {
		return err
	}

	tansaku.LoggerFromContext(ctx).Infof("uploaded %d file(s) to %s", len(report.Files)+1, ag.keyDir(report.Summary))
	return nil
}

func (ag *builtInArtifactGatherer) Finish() error {
	return nil
}

// アップロード先のキーのディレクトリ部分
func (ag *builtInArtifactGatherer) keyDir(summary *tansaku.Summary) string {
	return fmt.Sprintf("%s/%s/%s", ag.prefix, summary.StartedAt.UTC().Format("2006-01-02-15-04"), summary.SessionID)
}

func (ag *builtInArtifactGatherer) upload(ctx context.Context, summary *tansaku.Summary, name string, data []byte) error {
	key := ag.keyDir(summary) + "/" + name
	if err := ag.storage.put(ctx, key, data); err != nil {
		return xerrors.Errorf("can't upload artifact %s: %w", key, err)
	}

	tansaku.LoggerFromContext(ctx).Debugf("uploaded: %s", key)
	return nil
}

// artifactStoreを実装したS3を対象にしたストレージ
type s3ArtifactStorage struct {
	s3     *s3.S3
	bucket string
}

// 新しくs3ArtifactStoreを生成する
func newS3StoreFromConfiguration(conf *tansaku.Configuration) (artifactStorage, error) {
	sess, err := session.NewSession()
	if err != nil {
		return nil, xerrors.Errorf("can't create aws session: %v", err)
	}

	cred := credentials.NewStaticCredentials(conf.AwsAccessKeyID, conf.AwsSecretAccessKey, "")

	s3config := aws.NewConfig().WithCredentials(cred).WithRegion(conf.AwsRegion)
	endpoint := conf.OptionAsString(awsS3EndpointConfKey)
	if endpoint != nil {
		s3config = s3config.WithEndpoint(*endpoint).WithS3ForcePathStyle(true)
	}

	return &s3ArtifactStorage{
		s3:     s3.New(sess, s3config),
		bucket: conf.MustOptionAsString(bucketConfKey),
	}, nil
}

// 結果をS3のオブジェクトとして保存する
func (s *s3ArtifactStorage) put(ctx context.Context, key string, data []byte) error {
	obj := &s3.PutObjectInput{
		ACL:    aws.String("private"),
		Body:   bytes.NewReader(data),
		Key:    aws.String(key),
		Bucket: aws.String(s.bucket),
	}

	_, err := s.s3.PutObjectWithContext(ctx, obj)
	return err
}
