package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/taskpilot/domain"
	"github.com/fastygo/taskpilot/repository"
)

type suggestionRepository struct {
	pool *pgxpool.Pool
}

// NewSuggestionRepository returns a Postgres-backed SuggestionRepository. De-duplication
// relies on the suggestions_occurrence_key unique index, so concurrent producers are safe.
func NewSuggestionRepository(pool *pgxpool.Pool) repository.SuggestionRepository {
	return &suggestionRepository{pool: pool}
}

func (r *suggestionRepository) Create(ctx context.Context, draft domain.SuggestionDraft) (bool, error) {
	if draft.OwnerID == "" || draft.TaskID == "" || draft.Type == "" || draft.Occurrence.IsZero() {
		return false, domain.ErrInvalidPayload
	}

	const query = `
	INSERT INTO suggestions (id, owner_id, task_id, suggestion_type, message, metadata, occurrence_due)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (task_id, suggestion_type, occurrence_due) DO NOTHING
	`
	tag, err := r.pool.Exec(ctx, query,
		uuid.NewString(),
		draft.OwnerID,
		draft.TaskID,
		string(draft.Type),
		draft.Message,
		marshalMap(draft.Metadata),
		draft.Occurrence,
	)
	if err != nil {
		return false, classify(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *suggestionRepository) List(ctx context.Context, filter repository.SuggestionFilter) ([]domain.Suggestion, int, error) {
	const query = `
	SELECT id, owner_id, task_id, suggestion_type, message, metadata, dismissed, created_at,
		COUNT(*) OVER() AS total
	FROM suggestions
	WHERE owner_id = $1
	  AND ($2 = '' OR suggestion_type = $2)
	  AND ($3::boolean IS NULL OR dismissed = $3)
	ORDER BY created_at DESC, id ASC
	LIMIT $4 OFFSET $5
	`
	rows, err := r.pool.Query(ctx, query, filter.OwnerID, string(filter.Type), filter.Dismissed, clampLimit(filter.Limit), filter.Offset)
	if err != nil {
		return nil, 0, classify(err)
	}
	defer rows.Close()

	var (
		items []domain.Suggestion
		total int
	)
	for rows.Next() {
		var count int
		s, err := scanSuggestion(rows, &count)
		if err != nil {
			return nil, 0, classify(err)
		}
		total = count
		items = append(items, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, classify(err)
	}
	if len(items) == 0 && filter.Offset > 0 {
		// window count is empty past the last page
		if err := r.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM suggestions WHERE owner_id = $1 AND ($2 = '' OR suggestion_type = $2) AND ($3::boolean IS NULL OR dismissed = $3)`,
			filter.OwnerID, string(filter.Type), filter.Dismissed,
		).Scan(&total); err != nil {
			return nil, 0, classify(err)
		}
	}
	return items, total, nil
}

func (r *suggestionRepository) Counts(ctx context.Context, ownerID string) (domain.SuggestionCounts, error) {
	const query = `
	SELECT suggestion_type, dismissed, COUNT(*)
	FROM suggestions
	WHERE owner_id = $1
	GROUP BY suggestion_type, dismissed
	`
	counts := domain.SuggestionCounts{ByType: map[domain.SuggestionType]int{}}
	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return counts, classify(err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			kind      string
			dismissed bool
			n         int
		)
		if err := rows.Scan(&kind, &dismissed, &n); err != nil {
			return counts, classify(err)
		}
		counts.Total += n
		if dismissed {
			counts.Dismissed += n
		} else {
			counts.Active += n
			counts.ByType[domain.SuggestionType(kind)] += n
		}
	}
	return counts, classify(rows.Err())
}

func (r *suggestionRepository) Dismiss(ctx context.Context, id, ownerID string) (*domain.Suggestion, error) {
	const query = `
	UPDATE suggestions SET dismissed = true
	WHERE id = $1 AND owner_id = $2
	RETURNING id, owner_id, task_id, suggestion_type, message, metadata, dismissed, created_at
	`
	s, err := scanSuggestion(r.pool.QueryRow(ctx, query, id, ownerID))
	return s, classify(err)
}

func (r *suggestionRepository) Delete(ctx context.Context, id, ownerID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM suggestions WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSuggestionNotFound
	}
	return nil
}

func scanSuggestion(row interface {
	Scan(dest ...interface{}) error
}, extra ...interface{}) (*domain.Suggestion, error) {
	var (
		s        domain.Suggestion
		kind     string
		metadata []byte
	)
	dest := []interface{}{&s.ID, &s.OwnerID, &s.TaskID, &kind, &s.Message, &metadata, &s.Dismissed, &s.CreatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSuggestionNotFound
		}
		return nil, err
	}
	s.Type = domain.SuggestionType(kind)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &s.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of suggestion %s: %w", s.ID, err)
		}
	}
	return &s, nil
}
