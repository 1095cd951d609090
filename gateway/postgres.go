package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"taskboard/domain"
)

// querier is the subset of pgxpool.Pool the gateway uses.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres talks to the projects and comments tables directly.
type Postgres struct {
	db querier
}

// NewPostgres creates a gateway over an open pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{db: pool}
}

func (p *Postgres) FetchPage(ctx context.Context, status domain.Status, filters domain.FilterSet, page PageSpec) ([]domain.Task, error) {
	sql, args := buildPageQuery(status, filters, page)
	rows, err := p.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch %s page: %w", status, err)
	}
	return scanTasks(rows)
}

func (p *Postgres) CountByStatus(ctx context.Context, status domain.Status, filters domain.FilterSet) (int, error) {
	sql, args := buildCountQuery(status, filters)
	var n int64
	if err := p.db.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", status, err)
	}
	return int(n), nil
}

func (p *Postgres) UpdateStatus(ctx context.Context, taskID string, status domain.Status) error {
	tag, err := p.db.Exec(ctx, `UPDATE projects SET status = $1 WHERE id = $2`, string(status), taskID)
	if err != nil {
		return fmt.Errorf("update status of %s: %w", taskID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update status of %s: %w", taskID, ErrNotFound)
	}
	return nil
}

func (p *Postgres) ListDistinctValues(ctx context.Context, column LookupColumn) ([]string, error) {
	if !column.Valid() {
		return nil, fmt.Errorf("unknown lookup column %q", column)
	}
	rows, err := p.db.Query(ctx, buildDistinctQuery(column))
	if err != nil {
		return nil, fmt.Errorf("distinct %s: %w", column, err)
	}
	defer rows.Close()

	values := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

func (p *Postgres) SubcategoryMap(ctx context.Context) (map[string][]string, error) {
	rows, err := p.db.Query(ctx, `
		SELECT DISTINCT category, subcategory FROM projects
		WHERE category IS NOT NULL AND category <> '' AND subcategory IS NOT NULL AND subcategory <> ''
		ORDER BY category, subcategory`)
	if err != nil {
		return nil, fmt.Errorf("subcategory map: %w", err)
	}
	defer rows.Close()

	out := map[string][]string{}
	for rows.Next() {
		var category, subcategory string
		if err := rows.Scan(&category, &subcategory); err != nil {
			return nil, err
		}
		out[category] = append(out[category], subcategory)
	}
	return out, rows.Err()
}

func (p *Postgres) Discarded(ctx context.Context, limit int) ([]domain.Task, error) {
	rows, err := p.db.Query(ctx, "SELECT "+taskColumns+` FROM projects
		WHERE status = $1 ORDER BY created_at DESC, id DESC LIMIT $2`, string(domain.StatusDiscarded), limit)
	if err != nil {
		return nil, fmt.Errorf("discarded: %w", err)
	}
	return scanTasks(rows)
}

func (p *Postgres) TaskDetails(ctx context.Context, taskID string) (domain.Task, error) {
	rows, err := p.db.Query(ctx, "SELECT "+taskColumns+" FROM projects WHERE id = $1", taskID)
	if err != nil {
		return domain.Task{}, fmt.Errorf("task %s: %w", taskID, err)
	}
	tasks, err := scanTasks(rows)
	if err != nil {
		return domain.Task{}, err
	}
	if len(tasks) == 0 {
		return domain.Task{}, ErrNotFound
	}
	return tasks[0], nil
}

func (p *Postgres) Comments(ctx context.Context, taskID string) ([]domain.Comment, error) {
	rows, err := p.db.Query(ctx, `
		SELECT id, task_id, content, created_at, COALESCE(user_email, ''), updated_at
		FROM comments WHERE task_id = $1 ORDER BY created_at DESC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("comments of %s: %w", taskID, err)
	}
	defer rows.Close()

	comments := []domain.Comment{}
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.TaskID, &c.Content, &c.CreatedAt, &c.UserEmail, &c.UpdatedAt); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func (p *Postgres) AddComment(ctx context.Context, taskID, content, userEmail string) (domain.Comment, error) {
	c, err := newComment(taskID, content, userEmail)
	if err != nil {
		return domain.Comment{}, err
	}
	_, err = p.db.Exec(ctx, `
		INSERT INTO comments (id, task_id, content, user_email, created_at)
		VALUES ($1, $2, $3, $4, $5)`, c.ID, c.TaskID, c.Content, c.UserEmail, c.CreatedAt)
	if err != nil {
		return domain.Comment{}, fmt.Errorf("add comment to %s: %w", taskID, err)
	}
	return c, nil
}

// ErrEmptyComment rejects whitespace-only comment bodies.
var ErrEmptyComment = errors.New("comment content is empty")

func newComment(taskID, content, userEmail string) (domain.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Comment{}, ErrEmptyComment
	}
	if userEmail == "" {
		userEmail = domain.AnonymousAuthor
	}
	return domain.Comment{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		Content:   content,
		UserEmail: userEmail,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}, nil
}

func scanTasks(rows pgx.Rows) ([]domain.Task, error) {
	defer rows.Close()
	tasks := []domain.Task{}
	for rows.Next() {
		var t domain.Task
		var status string
		if err := rows.Scan(
			&t.ID, &t.Title, &t.Description, &status, &t.CreatedAt,
			&t.Category, &t.Subcategory,
			&t.AmountRawValue, &t.AmountDisplayValue, &t.HourlyBudgetType,
			&t.HourlyBudgetMinValue, &t.HourlyBudgetMaxValue, &t.TotalApplicants,
			&t.Country,
		); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.Status = domain.Status(status)
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
