package product

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nao1215/productgate/pkg/migration"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound は指定したIDの商品が存在しないことを表す。
var ErrNotFound = errors.New("商品が見つかりません")

// Product は商品。
type Product struct {
	// ID は商品の一意識別子。
	ID string `json:"id"`
	// Name は商品名。
	Name string `json:"name"`
	// Description は商品の説明。
	Description string `json:"description"`
	// Price は価格。0以上。
	Price float64 `json:"price"`
	// CreatedBy は商品を登録したユーザーのID。内部でのみ保持する。
	CreatedBy string `json:"-"`
}

// Store は商品の永続化を行う。
type Store interface {
	// Create は商品を登録する。
	Create(ctx context.Context, p Product) error
	// List は登録順に全商品を返す。
	List(ctx context.Context) ([]Product, error)
	// Get はIDで商品を取得する。存在しない場合は ErrNotFound。
	Get(ctx context.Context, id string) (Product, error)
	// Update は商品の名前・説明・価格を置き換える。存在しない場合は ErrNotFound。
	Update(ctx context.Context, p Product) error
	// Delete は商品を削除する。存在しない場合は ErrNotFound。
	Delete(ctx context.Context, id string) error
}

// SQLiteStore はSQLiteに商品を保存する Store。
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite はSQLiteデータベースを開き、マイグレーションを適用する。
// dsnには "file:/data/product.db" やインメモリの ":memory:" を指定する。
func OpenSQLite(ctx context.Context, dsn string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	if strings.Contains(dsn, ":memory:") {
		// インメモリDBは接続ごとに別になるため1本に固定する
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("PRAGMAの設定に失敗: %w", err)
	}
	if _, err := migration.Run(ctx, db, migrationsFS, "migrations", logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close はデータベース接続を閉じる。
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping はデータベースへの疎通を確認する。
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

// Create は商品を登録する。
func (s *SQLiteStore) Create(ctx context.Context, p Product) error {
	ts := s.timestamp()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, description, price, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, p.Price, p.CreatedBy, ts, ts,
	)
	if err != nil {
		return fmt.Errorf("商品の登録に失敗: %w", err)
	}
	return nil
}

// List は登録順に全商品を返す。商品が無い場合は空スライスを返す。
func (s *SQLiteStore) List(ctx context.Context) ([]Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, price, created_by
		FROM products
		ORDER BY created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("商品一覧の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	products := make([]Product, 0)
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.CreatedBy); err != nil {
			return nil, fmt.Errorf("商品の読み取りに失敗: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("商品一覧の取得に失敗: %w", err)
	}
	return products, nil
}

// Get はIDで商品を取得する。
func (s *SQLiteStore) Get(ctx context.Context, id string) (Product, error) {
	var p Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, price, created_by
		FROM products
		WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.CreatedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	if err != nil {
		return Product{}, fmt.Errorf("商品の取得に失敗: %w", err)
	}
	return p, nil
}

// Update は商品の名前・説明・価格を置き換える。
func (s *SQLiteStore) Update(ctx context.Context, p Product) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = ?, description = ?, price = ?, updated_at = ?
		WHERE id = ?`,
		p.Name, p.Description, p.Price, s.timestamp(), p.ID,
	)
	if err != nil {
		return fmt.Errorf("商品の更新に失敗: %w", err)
	}
	return requireAffected(res)
}

// Delete は商品を削除する。
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("商品の削除に失敗: %w", err)
	}
	return requireAffected(res)
}

// requireAffected は1行以上更新されていなければ ErrNotFound を返す。
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
