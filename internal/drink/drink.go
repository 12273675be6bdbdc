package drink

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ルートごとに要求する権限。
const (
	PermissionGetDetail = "get:drinks-detail"
	PermissionPost      = "post:drinks"
	PermissionPatch     = "patch:drinks"
	PermissionDelete    = "delete:drinks"
)

// Ingredient はレシピを構成する材料。
type Ingredient struct {
	// Name は材料名（例: "espresso"）。
	Name string `json:"name"`
	// Color はフロントエンドでカップを描画する際の色。
	Color string `json:"color"`
	// Parts は配合比率。
	Parts int `json:"parts"`
}

// Recipe は材料の並び。
type Recipe []Ingredient

// Drink は永続化されるドリンク。
type Drink struct {
	// ID はシステムが採番する一意識別子。作成後は変更されない。
	ID int64
	// Title はドリンク名。テーブル内で一意。
	Title string
	// Recipe はレシピ。
	Recipe Recipe
}

// ShortDrink は公開向けのドリンク表現。
type ShortDrink struct {
	ID     int64        `json:"id"`
	Title  string       `json:"title"`
	Recipe []Ingredient `json:"recipe"`
}

// LongDrink は権限を持つ利用者向けの詳細なドリンク表現。
// 現時点ではShortDrinkと同じ項目を持つが、要求する権限が異なるため別の型として扱う。
type LongDrink struct {
	ID     int64        `json:"id"`
	Title  string       `json:"title"`
	Recipe []Ingredient `json:"recipe"`
}

// Short は公開向けの表現を返す。
func (d *Drink) Short() ShortDrink {
	return ShortDrink{ID: d.ID, Title: d.Title, Recipe: d.Recipe.clone()}
}

// Long は詳細な表現を返す。
func (d *Drink) Long() LongDrink {
	return LongDrink{ID: d.ID, Title: d.Title, Recipe: d.Recipe.clone()}
}

func (r Recipe) clone() []Ingredient {
	out := make([]Ingredient, len(r))
	copy(out, r)
	return out
}

// Encode はレシピを保存用のJSON文字列に変換する。
func (r Recipe) Encode() (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("レシピのシリアライズに失敗: %w", err)
	}
	return string(data), nil
}

// DecodeRecipe は保存されたJSON文字列からレシピを復元する。
func DecodeRecipe(s string) (Recipe, error) {
	var r Recipe
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		return nil, fmt.Errorf("レシピのデシリアライズに失敗: %w", err)
	}
	return r, nil
}

// ErrMissingField はリクエストに必須項目が含まれていないことを表す。
var ErrMissingField = errors.New("必須項目がありません")

// ErrInvalidRecipe はレシピの形式が不正であることを表す。
var ErrInvalidRecipe = errors.New("レシピの形式が不正です")

// ErrInvalidTitle はドリンク名が空であることを表す。
var ErrInvalidTitle = errors.New("ドリンク名が不正です")

// ValidationError は入力値の検証エラー。
type ValidationError struct {
	// Field は問題のある項目名。
	Field string
	// Reason は詳細。
	Reason string
	// Err はErrMissingField等の分類用エラー。
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Field, e.Err, e.Reason)
}

// Unwrap は分類用エラーを返す。
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Validate はレシピが保存可能かを検証する。
// 材料が1つ以上あり、各材料の名前と色が空でなく、配合比率が1以上である必要がある。
func (r Recipe) Validate() error {
	if len(r) == 0 {
		return &ValidationError{Field: "recipe", Reason: "材料がありません", Err: ErrInvalidRecipe}
	}
	for i, ing := range r {
		switch {
		case strings.TrimSpace(ing.Name) == "":
			return &ValidationError{Field: fmt.Sprintf("recipe[%d].name", i), Reason: "空です", Err: ErrInvalidRecipe}
		case strings.TrimSpace(ing.Color) == "":
			return &ValidationError{Field: fmt.Sprintf("recipe[%d].color", i), Reason: "空です", Err: ErrInvalidRecipe}
		case ing.Parts < 1:
			return &ValidationError{Field: fmt.Sprintf("recipe[%d].parts", i), Reason: "1以上である必要があります", Err: ErrInvalidRecipe}
		}
	}
	return nil
}

// ParseRecipe はリクエストボディのrecipe項目を解釈する。
// 材料の配列に加えて、単一の材料オブジェクトも1要素のレシピとして受け付ける。
func ParseRecipe(raw json.RawMessage) (Recipe, error) {
	if isNull(raw) {
		return nil, &ValidationError{Field: "recipe", Err: ErrMissingField}
	}

	trimmed := bytes.TrimSpace(raw)
	var r Recipe
	if trimmed[0] == '{' {
		var ing Ingredient
		if err := json.Unmarshal(trimmed, &ing); err != nil {
			return nil, &ValidationError{Field: "recipe", Reason: err.Error(), Err: ErrInvalidRecipe}
		}
		r = Recipe{ing}
	} else if err := json.Unmarshal(trimmed, &r); err != nil {
		return nil, &ValidationError{Field: "recipe", Reason: err.Error(), Err: ErrInvalidRecipe}
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// drinkRequest は作成・更新リクエストのJSON構造。
// 項目の有無を区別するため、titleはポインタ、recipeは未解釈のまま受け取る。
type drinkRequest struct {
	Title  *string         `json:"title"`
	Recipe json.RawMessage `json:"recipe"`
}

// isNull はRawMessageが未指定またはnullかを返す。
func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// checkPresence はtitleとrecipeが両方とも指定されているかを確認する。
func (r *drinkRequest) checkPresence() error {
	if r.Title == nil {
		return &ValidationError{Field: "title", Err: ErrMissingField}
	}
	if isNull(r.Recipe) {
		return &ValidationError{Field: "recipe", Err: ErrMissingField}
	}
	return nil
}

// toDrink はリクエストの内容を検証してDrinkに変換する。
// checkPresenceが成功している必要がある。
func (r *drinkRequest) toDrink() (*Drink, error) {
	title := strings.TrimSpace(*r.Title)
	if title == "" {
		return nil, &ValidationError{Field: "title", Reason: "空です", Err: ErrInvalidTitle}
	}

	recipe, err := ParseRecipe(r.Recipe)
	if err != nil {
		return nil, err
	}
	return &Drink{Title: title, Recipe: recipe}, nil
}
