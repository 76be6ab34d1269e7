package publisher

import (
	"context"
	"encoding/json"

	"github.com/gomodule/redigo/redis"
	"golang.org/x/xerrors"

	"github.com/murakmii/tansaku/pkg/tansaku"
)

const (
	redisURLConfKey = "built_in.redis_url"
	channelConfKey  = "built_in.publisher.channel"

	defaultChannel = "tansaku:sessions"
	latestKey      = "tansaku:latest"
	summaryKeyTTL  = 24 * 60 * 60
)

// セッションの要約をRedisに保存し、購読者に通知するExporter
type builtInPublisher struct {
	conn    redis.Conn
	channel string
}

func BuiltInPublisherProvider(_ context.Context, conf *tansaku.Configuration) (tansaku.Exporter, error) {
	conn, err := redis.DialURL(conf.MustOptionAsString(redisURLConfKey))
	if err != nil {
		return nil, xerrors.Errorf("failed to connect redis: %w", err)
	}

	channel := defaultChannel
	if c := conf.OptionAsString(channelConfKey); c != nil && len(*c) > 0 {
		channel = *c
	}

	return &builtInPublisher{conn: conn, channel: channel}, nil
}

// 要約をセッション毎のキーと最新のキーに保存してからPUBLISHする
func (p *builtInPublisher) Export(ctx context.Context, report *tansaku.Report) error {
	data, err := json.Marshal(report.Summary)
	if err != nil {
		return xerrors.Errorf("failed to marshal summary: %w", err)
	}

	if _, err = p.conn.Do("MULTI"); err != nil {
		return err
	}

	if err = p.conn.Send("SET", "tansaku:session:"+report.Summary.SessionID, data, "EX", summaryKeyTTL); err != nil {
		return err
	}

	if err = p.conn.Send("SET", latestKey, data); err != nil {
		return err
	}

	if _, err = p.conn.Do("EXEC"); err != nil {
		return xerrors.Errorf("failed to save summary: %w", err)
	}

	receivers, err := redis.Int(p.conn.Do("PUBLISH", p.channel, data))
	if err != nil {
		return xerrors.Errorf("failed to publish summary: %w", err)
	}

	tansaku.LoggerFromContext(ctx).Infof("published summary to %s (%d receiver(s))", p.channel, receivers)
	return nil
}

func (p *builtInPublisher) Finish() error {
	return p.conn.Close()
}
