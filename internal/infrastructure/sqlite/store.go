package sqlite

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps the shared sql.DB handle for all sqlite-backed repositories.
type Store struct {
	DB *sql.DB
}

func NewStore(dataSourceName string) (*Store, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	return &Store{DB: db}, nil
}

// InitSchema creates the persisted layout: pickup_requests, marketplace_items
// (1:1 to pickup_requests), purchases (many per marketplace item),
// notifications, and the saga log.
func (s *Store) InitSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS pickup_requests (
		id TEXT PRIMARY KEY,
		requester_id TEXT NOT NULL,
		material_type TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		unit TEXT NOT NULL,
		proposed_price_per_unit TEXT NOT NULL,
		description TEXT,
		images TEXT,
		status TEXT NOT NULL,
		admin_id TEXT,
		admin_notes TEXT,
		requested_at TIMESTAMP NOT NULL,
		approved_at TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS marketplace_items (
		id TEXT PRIMARY KEY,
		source_request_id TEXT NOT NULL UNIQUE REFERENCES pickup_requests(id),
		owner_id TEXT NOT NULL,
		material_type TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		unit TEXT NOT NULL,
		price_per_unit TEXT NOT NULL,
		description TEXT,
		images TEXT,
		is_available INTEGER NOT NULL DEFAULT 1,
		version INTEGER NOT NULL DEFAULT 1,
		published_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS purchases (
		id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL REFERENCES marketplace_items(id),
		buyer_id TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		price_per_unit TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		payment_status TEXT NOT NULL,
		reference TEXT,
		purchased_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_purchases_item ON purchases(item_id);

	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		recipient_id TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT,
		type TEXT NOT NULL,
		is_read INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(recipient_id);

	CREATE TABLE IF NOT EXISTS saga_log (
		rowid_seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL,
		kind TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		state TEXT NOT NULL,
		reference TEXT,
		detail TEXT,
		at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_saga_log_id ON saga_log(id);
	`
	if _, err := s.DB.Exec(query); err != nil {
		return fmt.Errorf("sqlite: init schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}
