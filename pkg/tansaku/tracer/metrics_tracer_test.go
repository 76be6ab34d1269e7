package tracer

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"golang.org/x/xerrors"
)

type mockMetricsClient struct {
	m            sync.Mutex
	puttedNames  []string
	puttedValues []float64
	puttedTimes  []int64
}

func buildMockMetricsClient() *mockMetricsClient {
	return &mockMetricsClient{
		puttedNames:  make([]string, 0),
		puttedValues: make([]float64, 0),
		puttedTimes:  make([]int64, 0),
	}
}

func (m *mockMetricsClient) put(_ context.Context, ns string, e *emitted, dimName, dimValue string) {
	m.m.Lock()
	defer m.m.Unlock()

	m.puttedNames = append(m.puttedNames, *e.name)
	m.puttedValues = append(m.puttedValues, *e.value)
	m.puttedTimes = append(m.puttedTimes, e.timestamp.Unix())
}

func (m *mockMetricsClient) finish() {}

// 指定の名前のメトリクスだけを取り出す
func (m *mockMetricsClient) of(name string) ([]float64, []int64) {
	values := make([]float64, 0)
	times := make([]int64, 0)
	for i := range m.puttedNames {
		if m.puttedNames[i] == name {
			values = append(values, m.puttedValues[i])
			times = append(times, m.puttedTimes[i])
		}
	}

	return values, times
}

func buildTimeProvider(times ...time.Time) func() time.Time {
	return func() time.Time {
		tm := times[0]
		times = times[1:]
		return tm
	}
}

// 取得数と失敗数は同じ時刻で記録されるので、時刻を2回ずつ返す
func buildDoubledTimeProvider(times ...time.Time) (func() time.Time, func() time.Time) {
	crawled := make([]time.Time, len(times))
	failed := make([]time.Time, len(times))
	copy(crawled, times)
	copy(failed, times)
	return buildTimeProvider(crawled...), buildTimeProvider(failed...)
}

func buildMetricsTracer(client metricsClient, crawledTime, failedTime, latencyTime func() time.Time) *metricsTracer {
	return &metricsTracer{
		client:   client,
		ns:       "NS",
		dimName:  "Environment",
		dimValue: "Test",

		crawled:    newSumInMinuteMetrics(crawledTime, "crawled", ""),
		failed:     newSumInMinuteMetrics(failedTime, "failed", ""),
		getLatency: newAvgInMinuteMetrics(latencyTime, "latency", ""),
	}
}

func TestMetricsTracer_TraceCrawled(t *testing.T) {
	type want struct {
		crawled []float64
		failed  []float64
		times   []int64
	}

	tests := []struct {
		name string
		in   []time.Time
		errs []error
		want want
	}{
		{
			name: "1分毎に記録された場合、それぞれをメトリクスとして送信する",
			in: []time.Time{
				time.Unix(59, 0),
				time.Unix(61, 0),
				time.Unix(130, 0),
				time.Unix(200, 0),
			},
			errs: []error{nil, xerrors.New("failed"), nil, nil},
			want: want{
				crawled: []float64{1.0, 1.0, 1.0, 1.0},
				failed:  []float64{0.0, 1.0, 0.0, 0.0},
				times:   []int64{0, 60, 120, 180},
			},
		},
		{
			name: "1分間に複数回記録された場合、それぞれをバッファしてからメトリクスとして送信する",
			in: []time.Time{
				time.Unix(1, 0),
				time.Unix(2, 0),
				time.Unix(3, 0),
				time.Unix(60, 0),
				time.Unix(61, 0),
				time.Unix(62, 0),
				time.Unix(120, 0),
				time.Unix(130, 0),
			},
			errs: []error{nil, xerrors.New("a"), xerrors.New("b"), nil, nil, nil, xerrors.New("c"), nil},
			want: want{
				crawled: []float64{3.0, 3.0, 2.0},
				failed:  []float64{2.0, 0.0, 1.0},
				times:   []int64{0, 60, 120},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := buildMockMetricsClient()
			crawledTime, failedTime := buildDoubledTimeProvider(tt.in...)
			tracer := buildMetricsTracer(client, crawledTime, failedTime, time.Now)

			for i := 0; i < len(tt.in); i++ {
				tracer.TraceCrawled(context.Background(), tt.errs[i])
			}
			_ = tracer.Finish()

			gotCrawled, gotTimes := client.of("crawled")
			gotFailed, _ := client.of("failed")
			if !reflect.DeepEqual(gotCrawled, tt.want.crawled) || !reflect.DeepEqual(gotFailed, tt.want.failed) || !reflect.DeepEqual(gotTimes, tt.want.times) {
				t.Errorf("TraceCrawled() = {%+v,%+v,%+v}, want = {%+v,%+v,%+v}", gotCrawled, gotFailed, gotTimes, tt.want.crawled, tt.want.failed, tt.want.times)
			}
		})
	}
}

func TestMetricsTracer_TraceGetRequest(t *testing.T) {
	type in struct {
		times  []time.Time
		values []float64
	}

	type want struct {
		values []float64
		times  []int64
	}

	tests := []struct {
		name string
		in   in
		want want
	}{
		{
			name: "1分毎に記録された場合、それぞれをメトリクスとして送信する",
			in: in{
				times: []time.Time{
					time.Unix(59, 0),
					time.Unix(61, 0),
					time.Unix(130, 0),
				},
				values: []float64{0.100, 0.200, 0.300},
			},
			want: want{
				values: []float64{0.100, 0.200, 0.300},
				times:  []int64{0, 60, 120},
			},
		},
		{
			name: "1分間に複数回記録された場合、平均をメトリクスとして送信する",
			in: in{
				times: []time.Time{
					time.Unix(1, 0),
					time.Unix(2, 0),
					time.Unix(3, 0),
					time.Unix(60, 0),
					time.Unix(70, 0),
					time.Unix(80, 0),
				},
				values: []float64{0.100, 0.900, 0.200, 1.0, 3.0, 2.0},
			},
			want: want{
				values: []float64{0.400, 2.0},
				times:  []int64{0, 60},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := buildMockMetricsClient()
			tracer := buildMetricsTracer(client, time.Now, time.Now, buildTimeProvider(tt.in.times...))

			for i := 0; i < len(tt.in.times); i++ {
				tracer.TraceGetRequest(context.Background(), tt.in.values[i])
			}
			_ = tracer.Finish()

			gotValues, gotTimes := client.of("latency")
			if len(gotValues) != len(tt.want.values) || !reflect.DeepEqual(gotTimes, tt.want.times) {
				t.Fatalf("TraceGetRequest() = {%+v,%+v}, want = {%+v,%+v}", gotValues, gotTimes, tt.want.values, tt.want.times)
			}

			for i := range gotValues {
				if diff := gotValues[i] - tt.want.values[i]; diff > 1e-9 || diff < -1e-9 {
					t.Errorf("TraceGetRequest() = %+v, want = %+v", gotValues, tt.want.values)
					break
				}
			}
		})
	}
}
