package drink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrNotFound は指定したIDのドリンクが存在しないことを表す。
var ErrNotFound = errors.New("ドリンクが見つかりません")

// ErrDuplicateTitle は同じ名前のドリンクが既に存在することを表す。
var ErrDuplicateTitle = errors.New("同じ名前のドリンクが既に存在します")

// Repository はドリンクの永続化を行う。
// 各操作は単一のSQL文で完結し、呼び出しごとにアトミックに反映される。
type Repository interface {
	// Insert は新しいドリンクを保存し、採番したIDをd.IDに設定する。
	Insert(ctx context.Context, d *Drink) error
	// Update は既存ドリンクのtitleとrecipeを置き換える。
	Update(ctx context.Context, d *Drink) error
	// Delete は指定したIDのドリンクを削除する。
	Delete(ctx context.Context, id int64) error
	// All はすべてのドリンクを返す。
	All(ctx context.Context) ([]Drink, error)
	// ByID は指定したIDのドリンクを返す。存在しない場合はErrNotFoundを返す。
	ByID(ctx context.Context, id int64) (*Drink, error)
}

// seedDrink は初期化時に投入するドリンク。
var seedDrink = Drink{
	Title:  "water",
	Recipe: Recipe{{Name: "water", Color: "blue", Parts: 1}},
}

// Store はSQLiteを使ったRepositoryの実装。
type Store struct {
	db *sql.DB
}

// NewStore は新しいStoreを生成する。
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Insert は新しいドリンクを保存し、採番したIDをd.IDに設定する。
func (s *Store) Insert(ctx context.Context, d *Drink) error {
	recipe, err := d.Recipe.Encode()
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, "INSERT INTO drinks (title, recipe) VALUES (?, ?)", d.Title, recipe)
	if err != nil {
		return fmt.Errorf("ドリンクの作成に失敗: %w", translate(err))
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("採番されたIDの取得に失敗: %w", err)
	}
	d.ID = id
	return nil
}

// Update は既存ドリンクのtitleとrecipeを置き換える。
func (s *Store) Update(ctx context.Context, d *Drink) error {
	recipe, err := d.Recipe.Encode()
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, "UPDATE drinks SET title = ?, recipe = ? WHERE id = ?", d.Title, recipe, d.ID)
	if err != nil {
		return fmt.Errorf("ドリンクの更新に失敗: %w", translate(err))
	}
	return requireAffected(res)
}

// Delete は指定したIDのドリンクを削除する。
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM drinks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("ドリンクの削除に失敗: %w", err)
	}
	return requireAffected(res)
}

// All はすべてのドリンクをID順に返す。
func (s *Store) All(ctx context.Context) ([]Drink, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, title, recipe FROM drinks ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("ドリンク一覧の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var drinks []Drink
	for rows.Next() {
		d, err := scanDrink(rows)
		if err != nil {
			return nil, err
		}
		drinks = append(drinks, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ドリンク一覧の取得に失敗: %w", err)
	}
	return drinks, nil
}

// ByID は指定したIDのドリンクを返す。存在しない場合はErrNotFoundを返す。
func (s *Store) ByID(ctx context.Context, id int64) (*Drink, error) {
	row := s.db.QueryRowContext(ctx, "SELECT id, title, recipe FROM drinks WHERE id = ?", id)
	d, err := scanDrink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

// Reset はすべてのドリンクを削除し、初期データを投入する。
// IDの採番状態は維持するため、削除されたIDが再利用されることはない。
func (s *Store) Reset(ctx context.Context) error {
	recipe, err := seedDrink.Recipe.Encode()
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM drinks"); err != nil {
		return fmt.Errorf("ドリンクの全削除に失敗: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO drinks (title, recipe) VALUES (?, ?)", seedDrink.Title, recipe); err != nil {
		return fmt.Errorf("初期データの投入に失敗: %w", err)
	}
	return tx.Commit()
}

// scanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type scanner interface {
	Scan(dest ...any) error
}

func scanDrink(row scanner) (*Drink, error) {
	var (
		d      Drink
		recipe string
	)
	if err := row.Scan(&d.ID, &d.Title, &recipe); err != nil {
		return nil, err
	}

	r, err := DecodeRecipe(recipe)
	if err != nil {
		return nil, fmt.Errorf("ドリンク %d: %w", d.ID, err)
	}
	d.Recipe = r
	return &d, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新件数の取得に失敗: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// translate はSQLiteの一意制約違反をErrDuplicateTitleに変換する。
func translate(err error) error {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}

	code := sqliteErr.Code()
	if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
		(code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(sqliteErr.Error(), "UNIQUE")) {
		return fmt.Errorf("%w: %w", ErrDuplicateTitle, err)
	}
	return err
}
