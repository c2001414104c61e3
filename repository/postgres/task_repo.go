package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/taskpilot/domain"
	"github.com/fastygo/taskpilot/repository"
)

const taskColumns = `id, owner_id, title, description, priority, tags, category, completed, due_date,
	recurrence_pattern, reminder_enabled, reminder_offset_minutes, created_at, updated_at`

const taskColumnsQualified = `t.id, t.owner_id, t.title, t.description, t.priority, t.tags, t.category, t.completed, t.due_date,
	t.recurrence_pattern, t.reminder_enabled, t.reminder_offset_minutes, t.created_at, t.updated_at`

type taskRepository struct {
	pool *pgxpool.Pool
}

// NewTaskRepository returns a Postgres-backed implementation of TaskRepository.
func NewTaskRepository(pool *pgxpool.Pool) repository.TaskRepository {
	return &taskRepository{pool: pool}
}

func (r *taskRepository) GetByID(ctx context.Context, id, ownerID string) (*domain.Task, error) {
	const query = `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 AND owner_id = $2`
	row := r.pool.QueryRow(ctx, query, id, ownerID)
	task, err := scanTask(row)
	return task, classify(err)
}

func (r *taskRepository) List(ctx context.Context, filter repository.TaskFilter) ([]domain.Task, error) {
	const query = `
	SELECT ` + taskColumns + `
	FROM tasks
	WHERE owner_id = $1
	  AND ($2::boolean IS NULL OR completed = $2)
	  AND ($3 = '' OR $3 = ANY(tags))
	ORDER BY due_date ASC NULLS LAST, created_at DESC
	LIMIT $4 OFFSET $5
	`
	rows, err := r.pool.Query(ctx, query, filter.OwnerID, filter.Completed, filter.Tag, clampLimit(filter.Limit), filter.Offset)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (r *taskRepository) Create(ctx context.Context, ownerID string, draft domain.TaskDraft) (*domain.Task, error) {
	if ownerID == "" {
		return nil, domain.ErrInvalidPayload
	}
	draft.Normalize()
	if err := draft.Validate(); err != nil {
		return nil, err
	}
	id := draft.ID
	if id == "" {
		id = uuid.NewString()
	}

	// tasks.owner_id references users; callers authenticated by token may not have a
	// profile row yet
	const ensureOwner = `INSERT INTO users (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`

	const query = `
	INSERT INTO tasks (id, owner_id, title, description, priority, tags, category, completed, due_date,
		recurrence_pattern, reminder_enabled, reminder_offset_minutes)
	VALUES ($1, $2, $3, $4, $5, $6, $7, false, $8, $9, $10, $11)
	ON CONFLICT (id) DO NOTHING
	RETURNING ` + taskColumns

	var task *domain.Task
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, ensureOwner, ownerID); err != nil {
			return err
		}
		var err error
		task, err = scanTask(tx.QueryRow(ctx, query,
			id,
			ownerID,
			draft.Title,
			draft.Description,
			string(draft.Priority),
			draft.Tags,
			draft.Category,
			nullableTime(draft.DueDate),
			string(draft.Recurrence),
			draft.ReminderEnabled,
			draft.ReminderOffsetMinutes,
		))
		return err
	})
	if errors.Is(err, domain.ErrTaskNotFound) {
		// id already taken: the spawn was replayed
		return r.GetByID(ctx, id, ownerID)
	}
	if err != nil {
		return nil, classify(err)
	}
	return task, nil
}

func (r *taskRepository) Update(ctx context.Context, task *domain.Task) error {
	if task == nil {
		return domain.ErrInvalidPayload
	}

	const query = `
	UPDATE tasks
	SET title = $3,
		description = $4,
		priority = $5,
		tags = $6,
		category = $7,
		due_date = $8,
		recurrence_pattern = $9,
		reminder_enabled = $10,
		reminder_offset_minutes = $11,
		updated_at = NOW()
	WHERE id = $1 AND owner_id = $2
	RETURNING completed, created_at, updated_at
	`

	if err := r.pool.QueryRow(ctx, query,
		task.ID,
		task.OwnerID,
		task.Title,
		task.Description,
		string(task.Priority),
		task.Tags,
		task.Category,
		nullableTime(task.DueDate),
		string(task.Recurrence),
		task.ReminderEnabled,
		task.ReminderOffsetMinutes,
	).Scan(&task.Completed, &task.CreatedAt, &task.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrTaskNotFound
		}
		return classify(err)
	}

	return nil
}

func (r *taskRepository) Delete(ctx context.Context, id, ownerID string) error {
	const query = `DELETE FROM tasks WHERE id = $1 AND owner_id = $2`
	tag, err := r.pool.Exec(ctx, query, id, ownerID)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

func (r *taskRepository) MarkComplete(ctx context.Context, id, ownerID string) (*domain.Task, bool, error) {
	const query = `
	WITH prev AS (
		SELECT completed FROM tasks WHERE id = $1 AND owner_id = $2 FOR UPDATE
	)
	UPDATE tasks t
	SET completed = true,
		updated_at = CASE WHEN prev.completed THEN t.updated_at ELSE NOW() END
	FROM prev
	WHERE t.id = $1 AND t.owner_id = $2
	RETURNING ` + taskColumnsQualified + `, NOT prev.completed
	`
	var transitioned bool
	task, err := scanTask(r.pool.QueryRow(ctx, query, id, ownerID), &transitioned)
	if err != nil {
		return nil, false, classify(err)
	}
	return task, transitioned, nil
}

func (r *taskRepository) MarkIncomplete(ctx context.Context, id, ownerID string) (*domain.Task, error) {
	const query = `
	UPDATE tasks
	SET completed = false, updated_at = NOW()
	WHERE id = $1 AND owner_id = $2
	RETURNING ` + taskColumns
	task, err := scanTask(r.pool.QueryRow(ctx, query, id, ownerID))
	return task, classify(err)
}

func (r *taskRepository) FindOverdue(ctx context.Context, ownerID string, now time.Time, limit int) ([]domain.Task, error) {
	const query = `
	SELECT ` + taskColumns + `
	FROM tasks
	WHERE owner_id = $1
	  AND completed = false
	  AND due_date IS NOT NULL
	  AND due_date < $2
	ORDER BY due_date ASC, id ASC
	LIMIT $3
	`
	rows, err := r.pool.Query(ctx, query, ownerID, now, limit)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

func collectTasks(rows pgx.Rows) ([]domain.Task, error) {
	var tasks []domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, classify(err)
		}
		tasks = append(tasks, *task)
	}
	return tasks, classify(rows.Err())
}

func scanTask(row interface {
	Scan(dest ...interface{}) error
}, extra ...interface{}) (*domain.Task, error) {
	var task domain.Task
	var (
		priority   string
		recurrence string
		tags       []string
	)

	dest := []interface{}{
		&task.ID,
		&task.OwnerID,
		&task.Title,
		&task.Description,
		&priority,
		&tags,
		&task.Category,
		&task.Completed,
		&task.DueDate,
		&recurrence,
		&task.ReminderEnabled,
		&task.ReminderOffsetMinutes,
		&task.CreatedAt,
		&task.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, err
	}

	task.Priority = domain.Priority(priority)
	task.Recurrence = domain.RecurrencePattern(recurrence)
	task.Tags = tags
	if task.Tags == nil {
		task.Tags = []string{}
	}
	return &task, nil
}
