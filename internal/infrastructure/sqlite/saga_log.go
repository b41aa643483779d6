package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	domain "github.com/greenloop/recyclemart/internal/domain/saga"
)

type SagaLog struct {
	db *sql.DB
}

func NewSagaLog(store *Store) *SagaLog {
	return &SagaLog{db: store.DB}
}

func (l *SagaLog) Append(ctx context.Context, e domain.Entry) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO saga_log (id, kind, entity_id, state, reference, detail, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Kind), e.EntityID, string(e.State), e.Reference, e.Detail, e.At,
	)
	if err != nil {
		return fmt.Errorf("saga log: append: %w", err)
	}
	return nil
}

func (l *SagaLog) Unresolved(ctx context.Context) ([]domain.Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT i.id, i.kind, i.entity_id, i.state, i.reference, i.detail, i.at
		FROM saga_log i
		WHERE i.state = 'intent'
		  AND NOT EXISTS (
			SELECT 1 FROM saga_log s
			WHERE s.id = i.id AND s.state IN ('resolved', 'compensated')
		  )
		ORDER BY i.rowid_seq`)
	if err != nil {
		return nil, fmt.Errorf("saga log: unresolved: %w", err)
	}
	defer rows.Close()

	var out []domain.Entry
	for rows.Next() {
		var (
			e         domain.Entry
			kind      string
			state     string
			reference sql.NullString
			detail    sql.NullString
		)
		if err := rows.Scan(&e.ID, &kind, &e.EntityID, &state, &reference, &detail, &e.At); err != nil {
			return nil, fmt.Errorf("saga log: scan: %w", err)
		}
		e.Kind = domain.Kind(kind)
		e.State = domain.State(state)
		e.Reference = reference.String
		e.Detail = detail.String
		e.At = e.At.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}
