package drink

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// setupTestStore はインメモリSQLiteでマイグレーション済みのStoreを構築する。
func setupTestStore(t *testing.T) (*Store, *sql.DB) {
	t.Helper()

	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("インメモリDBの作成に失敗: %v", err)
	}
	// インメモリDBは接続ごとに別のDBになるため接続を1つに固定する
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := Migrate(context.Background(), sqlDB, zap.NewNop()); err != nil {
		t.Fatalf("スキーマ初期化に失敗: %v", err)
	}
	return NewStore(sqlDB), sqlDB
}

// insertTestDrink はテスト用にドリンクを保存するヘルパー関数。
func insertTestDrink(t *testing.T, repo Repository, title string) *Drink {
	t.Helper()

	d := &Drink{Title: title, Recipe: Recipe{{Name: title, Color: "brown", Parts: 1}}}
	if err := repo.Insert(context.Background(), d); err != nil {
		t.Fatalf("テスト用ドリンクの作成に失敗: %v", err)
	}
	return d
}

func TestStore_Insert(t *testing.T) {
	t.Parallel()

	t.Run("保存したドリンクにIDが採番される", func(t *testing.T) {
		t.Parallel()
		store, _ := setupTestStore(t)

		first := insertTestDrink(t, store, "latte")
		second := insertTestDrink(t, store, "mocha")
		if first.ID == 0 || second.ID <= first.ID {
			t.Errorf("ID = %d, %d", first.ID, second.ID)
		}

		got, err := store.ByID(context.Background(), second.ID)
		if err != nil {
			t.Fatalf("取得に失敗: %v", err)
		}
		if got.Title != "mocha" || len(got.Recipe) != 1 || got.Recipe[0].Name != "mocha" {
			t.Errorf("取得結果 = %+v", got)
		}
	})

	t.Run("同じ名前のドリンクはErrDuplicateTitle", func(t *testing.T) {
		t.Parallel()
		store, _ := setupTestStore(t)

		insertTestDrink(t, store, "latte")
		err := store.Insert(context.Background(), &Drink{Title: "latte", Recipe: Recipe{{Name: "milk", Color: "white", Parts: 1}}})
		if !errors.Is(err, ErrDuplicateTitle) {
			t.Errorf("エラー = %v, want %v", err, ErrDuplicateTitle)
		}
	})

	t.Run("不正なレシピは保存しない", func(t *testing.T) {
		t.Parallel()
		store, _ := setupTestStore(t)

		err := store.Insert(context.Background(), &Drink{Title: "empty"})
		if !errors.Is(err, ErrInvalidRecipe) {
			t.Errorf("エラー = %v, want %v", err, ErrInvalidRecipe)
		}
		drinks, err := store.All(context.Background())
		if err != nil {
			t.Fatalf("一覧取得に失敗: %v", err)
		}
		if len(drinks) != 0 {
			t.Errorf("件数 = %d, want 0", len(drinks))
		}
	})
}

func TestStore_Update(t *testing.T) {
	t.Parallel()

	t.Run("titleとrecipeを置き換える", func(t *testing.T) {
		t.Parallel()
		store, _ := setupTestStore(t)
		d := insertTestDrink(t, store, "latte")

		updated := &Drink{ID: d.ID, Title: "flat white", Recipe: Recipe{{Name: "milk", Color: "white", Parts: 2}}}
		if err := store.Update(context.Background(), updated); err != nil {
			t.Fatalf("更新に失敗: %v", err)
		}

		got, err := store.ByID(context.Background(), d.ID)
		if err != nil {
			t.Fatalf("取得に失敗: %v", err)
		}
		if got.Title != "flat white" || got.Recipe[0].Parts != 2 {
			t.Errorf("取得結果 = %+v", got)
		}
	})

	t.Run("存在しないIDはErrNotFound", func(t *testing.T) {
		t.Parallel()
		store, _ := setupTestStore(t)

		err := store.Update(context.Background(), &Drink{ID: 42, Title: "ghost", Recipe: Recipe{{Name: "air", Color: "clear", Parts: 1}}})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("エラー = %v, want %v", err, ErrNotFound)
		}
	})

	t.Run("他のドリンクと同じ名前への変更はErrDuplicateTitle", func(t *testing.T) {
		t.Parallel()
		store, _ := setupTestStore(t)
		insertTestDrink(t, store, "latte")
		d := insertTestDrink(t, store, "mocha")

		d.Title = "latte"
		if err := store.Update(context.Background(), d); !errors.Is(err, ErrDuplicateTitle) {
			t.Errorf("エラー = %v, want %v", err, ErrDuplicateTitle)
		}
	})
}

func TestStore_Delete(t *testing.T) {
	t.Parallel()

	t.Run("削除後は取得できない", func(t *testing.T) {
		t.Parallel()
		store, _ := setupTestStore(t)
		d := insertTestDrink(t, store, "latte")

		if err := store.Delete(context.Background(), d.ID); err != nil {
			t.Fatalf("削除に失敗: %v", err)
		}
		if _, err := store.ByID(context.Background(), d.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("エラー = %v, want %v", err, ErrNotFound)
		}
	})

	t.Run("存在しないIDはErrNotFound", func(t *testing.T) {
		t.Parallel()
		store, _ := setupTestStore(t)

		if err := store.Delete(context.Background(), 99); !errors.Is(err, ErrNotFound) {
			t.Errorf("エラー = %v, want %v", err, ErrNotFound)
		}
	})

	t.Run("削除したIDは再利用されない", func(t *testing.T) {
		t.Parallel()
		store, _ := setupTestStore(t)
		d := insertTestDrink(t, store, "latte")

		if err := store.Delete(context.Background(), d.ID); err != nil {
			t.Fatalf("削除に失敗: %v", err)
		}
		next := insertTestDrink(t, store, "mocha")
		if next.ID <= d.ID {
			t.Errorf("ID = %d, 削除済みID %d 以下が採番された", next.ID, d.ID)
		}
	})
}

func TestStore_All(t *testing.T) {
	t.Parallel()

	t.Run("空の場合は0件", func(t *testing.T) {
		t.Parallel()
		store, _ := setupTestStore(t)

		drinks, err := store.All(context.Background())
		if err != nil {
			t.Fatalf("一覧取得に失敗: %v", err)
		}
		if len(drinks) != 0 {
			t.Errorf("件数 = %d, want 0", len(drinks))
		}
	})

	t.Run("ID順に返す", func(t *testing.T) {
		t.Parallel()
		store, _ := setupTestStore(t)
		insertTestDrink(t, store, "latte")
		insertTestDrink(t, store, "mocha")
		insertTestDrink(t, store, "cappuccino")

		drinks, err := store.All(context.Background())
		if err != nil {
			t.Fatalf("一覧取得に失敗: %v", err)
		}
		if len(drinks) != 3 {
			t.Fatalf("件数 = %d, want 3", len(drinks))
		}
		for i := 1; i < len(drinks); i++ {
			if drinks[i-1].ID >= drinks[i].ID {
				t.Errorf("ID順になっていない: %d, %d", drinks[i-1].ID, drinks[i].ID)
			}
		}
	})

	t.Run("レシピを復元できない行はエラー", func(t *testing.T) {
		t.Parallel()
		store, sqlDB := setupTestStore(t)

		if _, err := sqlDB.Exec("INSERT INTO drinks (title, recipe) VALUES ('broken', 'not-json')"); err != nil {
			t.Fatalf("不正な行の挿入に失敗: %v", err)
		}
		if _, err := store.All(context.Background()); err == nil {
			t.Error("エラーが返されなかった")
		}
	})
}

func TestStore_Reset(t *testing.T) {
	t.Parallel()

	store, _ := setupTestStore(t)
	insertTestDrink(t, store, "latte")
	insertTestDrink(t, store, "mocha")

	if err := store.Reset(context.Background()); err != nil {
		t.Fatalf("初期化に失敗: %v", err)
	}

	drinks, err := store.All(context.Background())
	if err != nil {
		t.Fatalf("一覧取得に失敗: %v", err)
	}
	if len(drinks) != 1 {
		t.Fatalf("件数 = %d, want 1", len(drinks))
	}
	if drinks[0].Title != "water" || drinks[0].Recipe[0] != (Ingredient{Name: "water", Color: "blue", Parts: 1}) {
		t.Errorf("初期データ = %+v", drinks[0])
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()

	_, sqlDB := setupTestStore(t)
	if err := Migrate(context.Background(), sqlDB, zap.NewNop()); err != nil {
		t.Errorf("2回目のマイグレーションでエラー: %v", err)
	}
}
