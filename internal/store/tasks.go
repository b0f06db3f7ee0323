package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Task priorities.
const (
	PriorityLow    = "LOW"
	PriorityMedium = "MEDIUM"
	PriorityHigh   = "HIGH"
)

// Task statuses.
const (
	StatusIncomplete = "INCOMPLETE"
	StatusComplete   = "COMPLETE"
)

// Task is a single todo item owned by exactly one user.
type Task struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"-"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Priority    string     `json:"priority"`
	Status      string     `json:"status"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Tags        []string   `json:"tags,omitempty"`
}

// CreateTaskParams are the inputs for CreateTask. Title is required;
// the rest are optional.
type CreateTaskParams struct {
	Title       string
	Description string
	Priority    string // defaults to MEDIUM
	DueDate     *time.Time
	Tags        []string
}

// UpdateTaskParams describe a partial task update. Nil pointer fields
// are left untouched. DueDateSet distinguishes "clear the due date"
// (set with nil DueDate) from "don't touch it". TagsSet works the same
// way for the tag list: when true, the new set fully replaces the old.
type UpdateTaskParams struct {
	Title       *string
	Description *string
	Priority    *string
	DueDate     *time.Time
	DueDateSet  bool
	Tags        []string
	TagsSet     bool
}

// Empty reports whether the update carries no changes.
func (p UpdateTaskParams) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Priority == nil &&
		!p.DueDateSet && !p.TagsSet
}

// TaskFilter narrows ListTasks results. Zero values mean "no filter".
type TaskFilter struct {
	Status   string
	Priority string
	Tag      string
	Limit    int
}

// CreateTask creates a task owned by ownerID with status INCOMPLETE.
// Tags are resolved by (name, owner) and created when absent.
func (s *Store) CreateTask(ownerID string, p CreateTaskParams) (*Task, error) {
	now := time.Now().UTC()
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate id: %w", err)
	}

	priority := p.Priority
	if priority == "" {
		priority = PriorityMedium
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT INTO tasks (id, owner_id, title, description, priority, status, due_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id.String(), ownerID, p.Title, p.Description, priority, StatusIncomplete, p.DueDate, now, now)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}

	if err := s.setTaskTags(tx, ownerID, id.String(), p.Tags, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return s.GetTask(ownerID, id.String())
}

// GetTask returns a task by id, owner-filtered. Returns ErrNotFound
// when the task does not exist or belongs to a different owner.
func (s *Store) GetTask(ownerID, taskID string) (*Task, error) {
	row := s.db.QueryRow(`
		SELECT id, owner_id, title, description, priority, status, due_date, completed_at, created_at, updated_at
		FROM tasks
		WHERE id = ? AND owner_id = ?
	`, taskID, ownerID)

	t, err := scanTask(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get task: %w", err)
	}

	tags, err := s.taskTags(taskID)
	if err != nil {
		return nil, err
	}
	t.Tags = tags
	return t, nil
}

// ListTasks returns the owner's tasks newest first, narrowed by filter
// and capped at filter.Limit (default 50, max 100).
func (s *Store) ListTasks(ownerID string, f TaskFilter) ([]*Task, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	query := `
		SELECT DISTINCT t.id, t.owner_id, t.title, t.description, t.priority, t.status,
		       t.due_date, t.completed_at, t.created_at, t.updated_at
		FROM tasks t`
	args := []any{}
	where := []string{"t.owner_id = ?"}
	args = append(args, ownerID)

	if f.Tag != "" {
		// Tag filter joins through owner-scoped tags only.
		query += `
		JOIN task_tags tt ON tt.task_id = t.id
		JOIN tags g ON g.id = tt.tag_id AND g.owner_id = t.owner_id`
		where = append(where, "g.name = ?")
		args = append(args, f.Tag)
	}
	if f.Status != "" {
		where = append(where, "t.status = ?")
		args = append(args, f.Status)
	}
	if f.Priority != "" {
		where = append(where, "t.priority = ?")
		args = append(args, f.Priority)
	}

	query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	query += "\n\t\tORDER BY t.created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, t := range tasks {
		tags, err := s.taskTags(t.ID)
		if err != nil {
			return nil, err
		}
		t.Tags = tags
	}

	return tasks, nil
}

// CompleteTask marks a task COMPLETE. Completing an already-complete
// task is a no-op that preserves the original completion timestamp;
// the returned bool reports whether the task was already complete.
func (s *Store) CompleteTask(ownerID, taskID string) (*Task, bool, error) {
	t, err := s.GetTask(ownerID, taskID)
	if err != nil {
		return nil, false, err
	}

	if t.Status == StatusComplete {
		return t, true, nil
	}

	now := time.Now().UTC()
	_, err = s.db.Exec(`
		UPDATE tasks SET status = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?
	`, StatusComplete, now, now, taskID, ownerID)
	if err != nil {
		return nil, false, fmt.Errorf("complete task: %w", err)
	}

	t, err = s.GetTask(ownerID, taskID)
	return t, false, err
}

// UpdateTask applies a partial update. Status is never modified here;
// use CompleteTask. When p.TagsSet is true the task's tag associations
// are replaced wholesale with the new set.
func (s *Store) UpdateTask(ownerID, taskID string, p UpdateTaskParams) (*Task, error) {
	// Owner check up front so a foreign task id fails identically to a
	// missing one.
	if _, err := s.GetTask(ownerID, taskID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	sets := []string{"updated_at = ?"}
	args := []any{now}

	if p.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *p.Title)
	}
	if p.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *p.Description)
	}
	if p.Priority != nil {
		sets = append(sets, "priority = ?")
		args = append(args, *p.Priority)
	}
	if p.DueDateSet {
		sets = append(sets, "due_date = ?")
		args = append(args, p.DueDate) // nil clears the due date
	}

	args = append(args, taskID, ownerID)
	_, err = tx.Exec(`UPDATE tasks SET `+strings.Join(sets, ", ")+` WHERE id = ? AND owner_id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}

	if p.TagsSet {
		// Total replacement: drop every existing association, then
		// recreate from the new set.
		if _, err := tx.Exec(`DELETE FROM task_tags WHERE task_id = ?`, taskID); err != nil {
			return nil, fmt.Errorf("clear task tags: %w", err)
		}
		if err := s.setTaskTags(tx, ownerID, taskID, p.Tags, now); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return s.GetTask(ownerID, taskID)
}

// DeleteTask removes the task and its tag associations. The deleted
// task's title is returned for confirmation messaging. Deletion is a
// hard delete; a second call returns ErrNotFound.
func (s *Store) DeleteTask(ownerID, taskID string) (string, error) {
	t, err := s.GetTask(ownerID, taskID)
	if err != nil {
		return "", err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM task_tags WHERE task_id = ?`, taskID); err != nil {
		return "", fmt.Errorf("delete task tags: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM tasks WHERE id = ? AND owner_id = ?`, taskID, ownerID); err != nil {
		return "", fmt.Errorf("delete task: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}

	return t.Title, nil
}

// TagAssociationCount returns how many tag associations reference a
// task id, regardless of owner. Used by tests to verify cascade
// behavior.
func (s *Store) TagAssociationCount(taskID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM task_tags WHERE task_id = ?`, taskID).Scan(&n)
	return n, err
}

// setTaskTags resolves each tag name under the owner (creating missing
// rows) and associates them with the task. Caller owns the transaction.
func (s *Store) setTaskTags(tx *sql.Tx, ownerID, taskID string, tags []string, now time.Time) error {
	for _, name := range tags {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		tagID, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate tag id: %w", err)
		}

		// Resolve-or-create scoped to this owner.
		_, err = tx.Exec(`
			INSERT OR IGNORE INTO tags (id, owner_id, name, created_at)
			VALUES (?, ?, ?, ?)
		`, tagID.String(), ownerID, name, now)
		if err != nil {
			return fmt.Errorf("create tag: %w", err)
		}

		var resolvedID string
		err = tx.QueryRow(`SELECT id FROM tags WHERE owner_id = ? AND name = ?`, ownerID, name).Scan(&resolvedID)
		if err != nil {
			return fmt.Errorf("resolve tag: %w", err)
		}

		_, err = tx.Exec(`
			INSERT OR IGNORE INTO task_tags (task_id, tag_id) VALUES (?, ?)
		`, taskID, resolvedID)
		if err != nil {
			return fmt.Errorf("associate tag: %w", err)
		}
	}
	return nil
}

// taskTags returns the tag names associated with a task, sorted by name.
func (s *Store) taskTags(taskID string) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT g.name FROM tags g
		JOIN task_tags tt ON tt.tag_id = g.id
		WHERE tt.task_id = ?
		ORDER BY g.name
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("task tags: %w", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tags = append(tags, name)
	}
	return tags, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(sc scanner) (*Task, error) {
	var t Task
	var due, completed sql.NullTime
	err := sc.Scan(&t.ID, &t.OwnerID, &t.Title, &t.Description, &t.Priority, &t.Status,
		&due, &completed, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if due.Valid {
		t.DueDate = &due.Time
	}
	if completed.Valid {
		t.CompletedAt = &completed.Time
	}
	return &t, nil
}
