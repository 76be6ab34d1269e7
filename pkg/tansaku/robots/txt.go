package robots

import (
	"io"
	"strings"

	"github.com/temoto/robotstxt"
	"golang.org/x/xerrors"
)

// robots.txtとして読み込む最大サイズ
const maxTxtSize = 512 << 10

// 1つのrobots.txtを表す型
// dataがnilの場合は全て許可する
type Txt struct {
	primaryGroup   string
	secondaryGroup string
	data           *robotstxt.RobotsData
}

// 全て許可するTxtを返す
func AllowAll() *Txt {
	return &Txt{}
}

// 内容からTxtを生成して返す
func NewRobotsTxt(reader io.Reader, primaryGroup string, secondaryGroup string) (*Txt, error) {
	body, err := io.ReadAll(io.LimitReader(reader, maxTxtSize))
	if err != nil {
		return nil, xerrors.Errorf("can't read robots.txt: %w", err)
	}

	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return nil, xerrors.Errorf("can't parse robots.txt: %w", err)
	}

	return &Txt{
		primaryGroup:   strings.ToLower(primaryGroup),
		secondaryGroup: strings.ToLower(secondaryGroup),
		data:           data,
	}, nil
}

// robots.txtが指定のパスのクロールを許可しているかどうかを返す
func (txt *Txt) Allows(path string) bool {
	if txt.data == nil {
		return true
	}

	return txt.selectGroup().Test(path)
}

// パスの評価に使う適切なグループを選んで返す
// プライマリのUAに固有のグループ、セカンダリのUAに固有のグループ、"*"の順に探す
func (txt *Txt) selectGroup() *robotstxt.Group {
	primary := txt.data.FindGroup(txt.primaryGroup)
	if isNamed(primary) || len(txt.secondaryGroup) == 0 {
		return primary
	}

	secondary := txt.data.FindGroup(txt.secondaryGroup)
	if isNamed(secondary) {
		return secondary
	}

	return primary
}

func isNamed(g *robotstxt.Group) bool {
	return g != nil && len(g.Agent) > 0 && g.Agent != "*"
}
