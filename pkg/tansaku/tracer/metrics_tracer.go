package tracer

import (
	"context"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"

	"github.com/murakmii/tansaku/pkg/tansaku"
)

const (
	namespaceConfKey = "built_in.tracer.namespace"
	dimNameConfKey   = "built_in.tracer.dimension_name"
	dimValueConfKey  = "built_in.tracer.dimension_value"
)

// 動作をトレースしてメトリクスとして外部(CloudWatch)に送信するトレーサー
type metricsTracer struct {
	client   metricsClient
	ns       string
	dimName  string
	dimValue string

	crawled    metrics
	failed     metrics
	getLatency metrics
}

// 外部(CloudWatch)送信するためのClient
type metricsClient interface {
	put(ctx context.Context, ns string, e *emitted, dimName, dimValue string)
	finish()
}

// metricsClientの実装
type cloudWatchMetricsClient struct {
	client *cloudwatch.CloudWatch
	wg     *sync.WaitGroup
}

type metrics interface {
	add(value float64) *emitted
	flush() *emitted
}

type emitted struct {
	name      *string
	unit      *string
	value     *float64
	timestamp *time.Time
}

// 1分毎の合計
type sumInMinuteMetrics struct {
	m            *sync.Mutex
	timeProvider func() time.Time
	window       *time.Time
	count        *float64
	n            string
	u            string
}

// 1分毎の平均
type avgInMinuteMetrics struct {
	m            *sync.Mutex
	timeProvider func() time.Time
	window       *time.Time
	avg          *float64
	count        int
	n            string
	u            string
}

func newSumInMinuteMetrics(timeProvider func() time.Time, name string, unit string) *sumInMinuteMetrics {
	defaultCount := 0.0
	return &sumInMinuteMetrics{
		m:            &sync.Mutex{},
		timeProvider: timeProvider,
		count:        &defaultCount,
		n:            name,
		u:            unit,
	}
}

func (m *sumInMinuteMetrics) add(value float64) *emitted {
	var e *emitted
	nowWindow := m.timeProvider().Truncate(1 * time.Minute)

	m.m.Lock()
	defer m.m.Unlock()

	if m.window != nil && *m.window != nowWindow {
		e = m.emit()
		newCount := 0.0
		m.count = &newCount
		m.window = &nowWindow
	} else if m.window == nil {
		m.window = &nowWindow
	}

	*m.count += value
	return e
}

// 集計中の値を返す。何も集計していなければnil
func (m *sumInMinuteMetrics) flush() *emitted {
	m.m.Lock()
	defer m.m.Unlock()

	if m.window == nil {
		return nil
	}

	e := m.emit()
	newCount := 0.0
	m.count = &newCount
	m.window = nil
	return e
}

func (m *sumInMinuteMetrics) emit() *emitted {
	return &emitted{
		name:      &m.n,
		unit:      &m.u,
		value:     m.count,
		timestamp: m.window,
	}
}

func newAvgInMinuteMetrics(timeProvider func() time.Time, name string, unit string) *avgInMinuteMetrics {
	return &avgInMinuteMetrics{
		m:            &sync.Mutex{},
		timeProvider: timeProvider,
		n:            name,
		u:            unit,
	}
}

func (m *avgInMinuteMetrics) add(value float64) *emitted {
	var e *emitted
	nowWindow := m.timeProvider().Truncate(1 * time.Minute)

	m.m.Lock()
	defer m.m.Unlock()

	if m.window != nil && *m.window != nowWindow {
		e = m.emit()
		m.avg = nil
		m.count = 0
		m.window = &nowWindow
	} else if m.window == nil {
		m.window = &nowWindow
	}

	m.count++
	if m.count == 1 {
		m.avg = &value
	} else {
		diff := (value - *m.avg) / float64(m.count)
		*m.avg += diff
	}

	return e
}

func (m *avgInMinuteMetrics) flush() *emitted {
	m.m.Lock()
	defer m.m.Unlock()

	if m.window == nil || m.avg == nil {
		return nil
	}

	e := m.emit()
	m.avg = nil
	m.count = 0
	m.window = nil
	return e
}

func (m *avgInMinuteMetrics) emit() *emitted {
	return &emitted{
		name:      &m.n,
		unit:      &m.u,
		value:     m.avg,
		timestamp: m.window,
	}
}

// metricsTracerをTracerとして生成して返す
func NewMetricsTracer(conf *tansaku.Configuration) (tansaku.Tracer, error) {
	client, err := newCloudWatchMetricsClient(conf)
	if err != nil {
		return nil, xerrors.Errorf("failed to build cloudwatch client: %w", err)
	}

	return &metricsTracer{
		client:   client,
		ns:       conf.MustOptionAsString(namespaceConfKey),
		dimName:  conf.MustOptionAsString(dimNameConfKey),
		dimValue: conf.MustOptionAsString(dimValueConfKey),

		crawled:    newSumInMinuteMetrics(time.Now, "Pages Per Minute", "Count"),
		failed:     newSumInMinuteMetrics(time.Now, "Fetch Failures", "Count"),
		getLatency: newAvgInMinuteMetrics(time.Now, "GET Latency", "Seconds"),
	}, nil
}

// 1ページの取得をトレースして、1分間の取得数と失敗数をCloudWatchに送信する
func (tracer *metricsTracer) TraceCrawled(ctx context.Context, err error) {
	if e := tracer.crawled.add(1); e != nil {
		tracer.client.put(ctx, tracer.ns, e, tracer.dimName, tracer.dimValue)
	}

	failure := 0.0
	if err != nil {
		failure = 1.0
	}

	if e := tracer.failed.add(failure); e != nil {
		tracer.client.put(ctx, tracer.ns, e, tracer.dimName, tracer.dimValue)
	}
}

// 1 HTTP GETをトレースして1分間の間に発生したGETリクエストのレイテンシの平均をCloudWatchに送信する
func (tracer *metricsTracer) TraceGetRequest(ctx context.Context, elapsed float64) {
	if e := tracer.getLatency.add(elapsed); e != nil {
		tracer.client.put(ctx, tracer.ns, e, tracer.dimName, tracer.dimValue)
	}
}

// 集計途中のメトリクスも送信してから終了する
func (tracer *metricsTracer) Finish() error {
	ctx := tansaku.ContextWithLogger(context.Background(), logrus.WithField("component", "tracer"))
	for _, m := range []metrics{tracer.crawled, tracer.failed, tracer.getLatency} {
		if e := m.flush(); e != nil {
			tracer.client.put(ctx, tracer.ns, e, tracer.dimName, tracer.dimValue)
		}
	}

	tracer.client.finish()
	return nil
}

func newCloudWatchMetricsClient(conf *tansaku.Configuration) (metricsClient, error) {
	sess, err := session.NewSession()
	if err != nil {
		return nil, err
	}

	cred := credentials.NewStaticCredentials(conf.AwsAccessKeyID, conf.AwsSecretAccessKey, "")
	config := aws.NewConfig().WithCredentials(cred).WithRegion(conf.AwsRegion).WithMaxRetries(5)

	return &cloudWatchMetricsClient{
		client: cloudwatch.New(sess, config),
		wg:     &sync.WaitGroup{},
	}, nil
}

func (m *cloudWatchMetricsClient) put(ctx context.Context, ns string, e *emitted, dimName, dimValue string) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		_, err := m.client.PutMetricData(&cloudwatch.PutMetricDataInput{
			MetricData: []*cloudwatch.MetricDatum{
				{
					Dimensions: []*cloudwatch.Dimension{
						{
							Name:  &dimName,
							Value: &dimValue,
						},
					},
					MetricName: e.name,
					Timestamp:  e.timestamp,
					Value:      e.value,
					Unit:       e.unit,
				},
			},
			Namespace: &ns,
		})

		if err != nil {
			tansaku.LoggerFromContext(ctx).Warnf("failed to put metrics: %v", err)
		}
	}()
}

func (m *cloudWatchMetricsClient) finish() {
	m.wg.Wait()
}
