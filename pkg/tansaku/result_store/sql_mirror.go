package result_store

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"golang.org/x/xerrors"

	"github.com/murakmii/tansaku/pkg/tansaku"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	sqlDriverConfKey = "built_in.result_store.sql_driver"
	sqlSourceConfKey = "built_in.result_store.sql_source"
)

// 表の名前と列
var mirroredTables = []struct {
	name    string
	columns []string
}{
	{name: "tansaku_pages", columns: []string{"url"}},
	{name: "tansaku_images", columns: []string{"source_url", "image_url"}},
	{name: "tansaku_keyword_matches", columns: []string{"url", "matched_keywords"}},
	{name: "tansaku_links", columns: []string{"source_url", "link_url"}},
}

// CSVと同じ内容をSQLのテーブルにも保存する
type sqlMirror struct {
	db     *sql.DB
	driver string
}

// ドライバが設定されていなければnilを返す
func newSQLMirrorFromConfiguration(ctx context.Context, conf *tansaku.Configuration) (*sqlMirror, error) {
	driver := conf.OptionAsString(sqlDriverConfKey)
	if driver == nil || len(*driver) == 0 {
		return nil, nil
	}

	source := conf.MustOptionAsString(sqlSourceConfKey)
	return newSQLMirror(ctx, *driver, source)
}

func newSQLMirror(ctx context.Context, driver, source string) (*sqlMirror, error) {
	switch driver {
	case "sqlite3", "mysql", "postgres":
	default:
		return nil, xerrors.Errorf("unsupported sql driver: %s", driver)
	}

	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, xerrors.Errorf("failed to connect db: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if driver == "sqlite3" {
		db.SetConnMaxLifetime(0)
	} else {
		db.SetConnMaxLifetime(10 * time.Second)
	}

	m := &sqlMirror{db: db, driver: driver}
	if err = m.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return m, nil
}

func (m *sqlMirror) migrate(ctx context.Context) error {
	for _, table := range mirroredTables {
		columns := make([]string, len(table.columns))
		for i, column := range table.columns {
			columns[i] = column + " TEXT NOT NULL"
		}

		query := "CREATE TABLE IF NOT EXISTS " + table.name + " (" + strings.Join(columns, ", ") + ")"
		if _, err := m.db.ExecContext(ctx, query); err != nil {
			return xerrors.Errorf("failed to create table %s: %w", table.name, err)
		}
	}

	return nil
}

// 1トランザクションで全ての行を入れ替える
func (m *sqlMirror) replace(ctx context.Context, t *tables) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return xerrors.Errorf("failed to begin transaction: %w", err)
	}

	if err = m.replaceInTx(ctx, tx, t); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

func (m *sqlMirror) replaceInTx(ctx context.Context, tx *sql.Tx, t *tables) error {
	rows := [][][]interface{}{
		make([][]interface{}, 0, len(t.pages)),
		make([][]interface{}, 0, len(t.images)),
		make([][]interface{}, 0, len(t.keywordMatches)),
		make([][]interface{}, 0, len(t.links)),
	}

	for _, r := range t.pages {
		rows[0] = append(rows[0], []interface{}{r.URL})
	}
	for _, r := range t.images {
		rows[1] = append(rows[1], []interface{}{r.SourceURL, r.ImageURL})
	}
	for _, r := range t.keywordMatches {
		rows[2] = append(rows[2], []interface{}{r.URL, r.MatchedKeywords})
	}
	for _, r := range t.links {
		rows[3] = append(rows[3], []interface{}{r.SourceURL, r.LinkURL})
	}

	for i, table := range mirroredTables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table.name); err != nil {
			return xerrors.Errorf("failed to delete from %s: %w", table.name, err)
		}

		if len(rows[i]) == 0 {
			continue
		}

		stmt, err := tx.PrepareContext(ctx, m.insertQuery(table.name, table.columns))
		if err != nil {
			return xerrors.Errorf("failed to prepare insert into %s: %w", table.name, err)
		}

		for _, row := range rows[i] {
			if _, err = stmt.ExecContext(ctx, row...); err != nil {
				_ = stmt.Close()
				return xerrors.Errorf("failed to insert into %s: %w", table.name, err)
			}
		}

		if err = stmt.Close(); err != nil {
			return err
		}
	}

	return nil
}

// ドライバに合わせたプレースホルダでINSERT文を組み立てる
func (m *sqlMirror) insertQuery(table string, columns []string) string {
	placeholders := make([]string, len(columns))
	for i := range columns {
		if m.driver == "postgres" {
			placeholders[i] = "$" + strconv.Itoa(i+1)
		} else {
			placeholders[i] = "?"
		}
	}

	return "INSERT INTO " + table + " (" + strings.Join(columns, ", ") + ") VALUES (" + strings.Join(placeholders, ", ") + ")"
}

func (m *sqlMirror) close() error {
	return m.db.Close()
}
