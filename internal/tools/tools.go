package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/davenby/taskpilot/internal/store"
)

// Input bounds for tool arguments.
const (
	MaxTitleLen       = 500
	MaxDescriptionLen = 2000
	DefaultListLimit  = 50
	MaxListLimit      = 100
)

// Tool represents one callable task operation. The owner id is always
// supplied by the caller from the authenticated session, never taken
// from model output.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	Handler     func(ctx context.Context, ownerID string, args map[string]any) (string, error) `json:"-"`
}

// Registry holds the fixed set of task tools.
type Registry struct {
	tools map[string]*Tool
	store *store.Store
}

// NewRegistry creates the registry with the five task tools.
func NewRegistry(st *store.Store) *Registry {
	r := &Registry{
		tools: make(map[string]*Tool),
		store: st,
	}
	r.registerBuiltins()
	return r
}

func (r *Registry) registerBuiltins() {
	r.register(&Tool{
		Name:        "add_task",
		Description: "Create a new task on the user's todo list. Use when the user asks to add, create, or remember something to do.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"title": map[string]any{
					"type":        "string",
					"description": "Short task title (required, max 500 characters)",
				},
				"description": map[string]any{
					"type":        "string",
					"description": "Longer details (optional, max 2000 characters)",
				},
				"priority": map[string]any{
					"type":        "string",
					"enum":        []string{"LOW", "MEDIUM", "HIGH"},
					"description": "Task priority (default MEDIUM)",
				},
				"due_date": map[string]any{
					"type":        "string",
					"description": "Due date as YYYY-MM-DD or RFC3339 timestamp (optional)",
				},
				"tags": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Tag names to attach (optional)",
				},
			},
			"required": []string{"title"},
		},
		Handler: r.handleAddTask,
	})

	r.register(&Tool{
		Name:        "list_tasks",
		Description: "List the user's tasks, newest first. Filter by status, priority, or tag.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"status": map[string]any{
					"type":        "string",
					"enum":        []string{"INCOMPLETE", "COMPLETE"},
					"description": "Only tasks with this status (optional)",
				},
				"priority": map[string]any{
					"type":        "string",
					"enum":        []string{"LOW", "MEDIUM", "HIGH"},
					"description": "Only tasks with this priority (optional)",
				},
				"tag": map[string]any{
					"type":        "string",
					"description": "Only tasks carrying this tag (optional)",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum number of tasks to return, 1-100 (default 50)",
				},
			},
		},
		Handler: r.handleListTasks,
	})

	r.register(&Tool{
		Name:        "complete_task",
		Description: "Mark a task as complete. Safe to call on an already-completed task.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"task_id": map[string]any{
					"type":        "string",
					"description": "The task ID to complete",
				},
			},
			"required": []string{"task_id"},
		},
		Handler: r.handleCompleteTask,
	})

	r.register(&Tool{
		Name:        "update_task",
		Description: "Change a task's title, description, priority, due date, or tags. At least one field besides task_id is required. Providing tags replaces the task's entire tag set.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"task_id": map[string]any{
					"type":        "string",
					"description": "The task ID to update",
				},
				"title": map[string]any{
					"type":        "string",
					"description": "New title (optional)",
				},
				"description": map[string]any{
					"type":        "string",
					"description": "New description (optional)",
				},
				"priority": map[string]any{
					"type":        "string",
					"enum":        []string{"LOW", "MEDIUM", "HIGH"},
					"description": "New priority (optional)",
				},
				"due_date": map[string]any{
					"type":        "string",
					"description": "New due date, or empty string to clear it (optional)",
				},
				"tags": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Replacement tag set (optional; replaces all existing tags)",
				},
			},
			"required": []string{"task_id"},
		},
		Handler: r.handleUpdateTask,
	})

	r.register(&Tool{
		Name:        "delete_task",
		Description: "Permanently delete a task. This cannot be undone; confirm with the user before deleting anything ambiguous.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"task_id": map[string]any{
					"type":        "string",
					"description": "The task ID to delete",
				},
			},
			"required": []string{"task_id"},
		},
		Handler: r.handleDeleteTask,
	})
}

func (r *Registry) register(t *Tool) {
	r.tools[t.Name] = t
}

// Get retrieves a tool by name, or nil if unknown.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// Names returns the registered tool names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Schemas returns all tool schemas in the wire shape the model expects.
func (r *Registry) Schemas() []map[string]any {
	var result []map[string]any
	for _, t := range r.tools {
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return result
}

// Execute runs a tool by name for the given owner. Unknown names are
// rejected without dispatch.
func (r *Registry) Execute(ctx context.Context, ownerID, name string, args map[string]any) (string, error) {
	tool := r.tools[name]
	if tool == nil {
		return "", &ErrUnknownTool{ToolName: name}
	}
	if ownerID == "" {
		return "", fmt.Errorf("missing owner identity")
	}
	return tool.Handler(ctx, ownerID, args)
}

// Tool handlers

func (r *Registry) handleAddTask(ctx context.Context, ownerID string, args map[string]any) (string, error) {
	title := strings.TrimSpace(stringArg(args, "title"))
	if title == "" {
		return "", &ValidationError{Field: "title", Reason: "required"}
	}
	if utf8.RuneCountInString(title) > MaxTitleLen {
		return "", &ValidationError{Field: "title", Reason: fmt.Sprintf("longer than %d characters", MaxTitleLen)}
	}

	description := stringArg(args, "description")
	if utf8.RuneCountInString(description) > MaxDescriptionLen {
		return "", &ValidationError{Field: "description", Reason: fmt.Sprintf("longer than %d characters", MaxDescriptionLen)}
	}

	priority := strings.ToUpper(stringArg(args, "priority"))
	if priority == "" {
		priority = store.PriorityMedium
	}
	if !validPriority(priority) {
		return "", &ValidationError{Field: "priority", Reason: "must be LOW, MEDIUM, or HIGH"}
	}

	var due *time.Time
	if raw := stringArg(args, "due_date"); raw != "" {
		parsed, err := parseDueDate(raw)
		if err != nil {
			return "", &ValidationError{Field: "due_date", Reason: err.Error()}
		}
		due = &parsed
	}

	tags, ok := stringSliceArg(args, "tags")
	if !ok {
		return "", &ValidationError{Field: "tags", Reason: "must be an array of strings"}
	}

	task, err := r.store.CreateTask(ownerID, store.CreateTaskParams{
		Title:       title,
		Description: description,
		Priority:    priority,
		DueDate:     due,
		Tags:        tags,
	})
	if err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}

	return formatTaskLine("Created task", task), nil
}

func (r *Registry) handleListTasks(ctx context.Context, ownerID string, args map[string]any) (string, error) {
	filter := store.TaskFilter{Limit: DefaultListLimit}

	if status := strings.ToUpper(stringArg(args, "status")); status != "" {
		if status != store.StatusIncomplete && status != store.StatusComplete {
			return "", &ValidationError{Field: "status", Reason: "must be INCOMPLETE or COMPLETE"}
		}
		filter.Status = status
	}
	if priority := strings.ToUpper(stringArg(args, "priority")); priority != "" {
		if !validPriority(priority) {
			return "", &ValidationError{Field: "priority", Reason: "must be LOW, MEDIUM, or HIGH"}
		}
		filter.Priority = priority
	}
	filter.Tag = stringArg(args, "tag")

	if raw, ok := args["limit"]; ok {
		limit, ok := intArg(raw)
		if !ok || limit < 1 || limit > MaxListLimit {
			return "", &ValidationError{Field: "limit", Reason: fmt.Sprintf("must be between 1 and %d", MaxListLimit)}
		}
		filter.Limit = limit
	}

	tasks, err := r.store.ListTasks(ownerID, filter)
	if err != nil {
		return "", fmt.Errorf("list tasks: %w", err)
	}

	if len(tasks) == 0 {
		return "No matching tasks.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d task(s):\n", len(tasks))
	for _, t := range tasks {
		fmt.Fprintf(&sb, "- [%s] %s (id: %s, priority: %s", t.Status, t.Title, t.ID, t.Priority)
		if t.DueDate != nil {
			fmt.Fprintf(&sb, ", due: %s", t.DueDate.Format("2006-01-02"))
		}
		if len(t.Tags) > 0 {
			fmt.Fprintf(&sb, ", tags: %s", strings.Join(t.Tags, ", "))
		}
		sb.WriteString(")\n")
	}
	return sb.String(), nil
}

func (r *Registry) handleCompleteTask(ctx context.Context, ownerID string, args map[string]any) (string, error) {
	taskID := stringArg(args, "task_id")
	if taskID == "" {
		return "", &ValidationError{Field: "task_id", Reason: "required"}
	}

	task, already, err := r.store.CompleteTask(ownerID, taskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("task not found")
		}
		return "", fmt.Errorf("complete task: %w", err)
	}

	if already {
		return fmt.Sprintf("Task %q is already complete (completed %s).",
			task.Title, task.CompletedAt.Format(time.RFC3339)), nil
	}
	return fmt.Sprintf("Completed task %q (completed %s).",
		task.Title, task.CompletedAt.Format(time.RFC3339)), nil
}

func (r *Registry) handleUpdateTask(ctx context.Context, ownerID string, args map[string]any) (string, error) {
	taskID := stringArg(args, "task_id")
	if taskID == "" {
		return "", &ValidationError{Field: "task_id", Reason: "required"}
	}

	var p store.UpdateTaskParams

	if raw, ok := args["title"]; ok {
		title := strings.TrimSpace(toString(raw))
		if title == "" {
			return "", &ValidationError{Field: "title", Reason: "cannot be empty"}
		}
		if utf8.RuneCountInString(title) > MaxTitleLen {
			return "", &ValidationError{Field: "title", Reason: fmt.Sprintf("longer than %d characters", MaxTitleLen)}
		}
		p.Title = &title
	}
	if raw, ok := args["description"]; ok {
		description := toString(raw)
		if utf8.RuneCountInString(description) > MaxDescriptionLen {
			return "", &ValidationError{Field: "description", Reason: fmt.Sprintf("longer than %d characters", MaxDescriptionLen)}
		}
		p.Description = &description
	}
	if raw, ok := args["priority"]; ok {
		priority := strings.ToUpper(toString(raw))
		if !validPriority(priority) {
			return "", &ValidationError{Field: "priority", Reason: "must be LOW, MEDIUM, or HIGH"}
		}
		p.Priority = &priority
	}
	if raw, ok := args["due_date"]; ok {
		p.DueDateSet = true
		if str := toString(raw); str != "" {
			parsed, err := parseDueDate(str)
			if err != nil {
				return "", &ValidationError{Field: "due_date", Reason: err.Error()}
			}
			p.DueDate = &parsed
		}
		// Empty string clears the due date.
	}
	if _, ok := args["tags"]; ok {
		tags, valid := stringSliceArg(args, "tags")
		if !valid {
			return "", &ValidationError{Field: "tags", Reason: "must be an array of strings"}
		}
		p.TagsSet = true
		p.Tags = tags
	}

	if p.Empty() {
		return "", &ValidationError{Field: "update", Reason: "at least one field besides task_id is required"}
	}

	task, err := r.store.UpdateTask(ownerID, taskID, p)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("task not found")
		}
		return "", fmt.Errorf("update task: %w", err)
	}

	return formatTaskLine("Updated task", task), nil
}

func (r *Registry) handleDeleteTask(ctx context.Context, ownerID string, args map[string]any) (string, error) {
	taskID := stringArg(args, "task_id")
	if taskID == "" {
		return "", &ValidationError{Field: "task_id", Reason: "required"}
	}

	title, err := r.store.DeleteTask(ownerID, taskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("task not found")
		}
		return "", fmt.Errorf("delete task: %w", err)
	}

	return fmt.Sprintf("Deleted task %q.", title), nil
}

// Argument helpers. Model-supplied arguments arrive as decoded JSON,
// so numbers are float64 and arrays are []any.

func stringArg(args map[string]any, key string) string {
	return toString(args[key])
}

func toString(v any) string {
	s, _ := v.(string)
	return s
}

func intArg(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}

// stringSliceArg decodes an array-of-strings argument. The second
// return is false when the value is present but has the wrong type;
// an absent key is fine and yields nil. Distinguishing the two keeps a
// malformed tags argument from being mistaken for an explicit clear.
func stringSliceArg(args map[string]any, key string) ([]string, bool) {
	raw, present := args[key]
	if !present {
		return nil, true
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, false
	}
	var out []string
	for _, v := range items {
		s, ok := v.(string)
		if !ok {
			return nil, false
		}
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out, true
}

func validPriority(p string) bool {
	return p == store.PriorityLow || p == store.PriorityMedium || p == store.PriorityHigh
}

func parseDueDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("expected YYYY-MM-DD or RFC3339 timestamp")
}

func formatTaskLine(verb string, t *store.Task) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %q (id: %s, priority: %s", verb, t.Title, t.ID, t.Priority)
	if t.DueDate != nil {
		fmt.Fprintf(&sb, ", due: %s", t.DueDate.Format("2006-01-02"))
	}
	if len(t.Tags) > 0 {
		fmt.Fprintf(&sb, ", tags: %s", strings.Join(t.Tags, ", "))
	}
	sb.WriteString(")")
	return sb.String()
}
