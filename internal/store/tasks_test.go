package store

import (
	"errors"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateTask_Defaults(t *testing.T) {
	s := newTestStore(t)

	task, err := s.CreateTask("alice", CreateTaskParams{Title: "buy milk"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if task.Priority != PriorityMedium {
		t.Errorf("priority = %q, want MEDIUM", task.Priority)
	}
	if task.Status != StatusIncomplete {
		t.Errorf("status = %q, want INCOMPLETE", task.Status)
	}
	if task.CompletedAt != nil {
		t.Error("new task should not have a completion timestamp")
	}
}

func TestCreateTask_TagsAreOwnerScoped(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CreateTask("alice", CreateTaskParams{Title: "a", Tags: []string{"home"}})
	if err != nil {
		t.Fatalf("create alice task: %v", err)
	}
	_, err = s.CreateTask("bob", CreateTaskParams{Title: "b", Tags: []string{"home"}})
	if err != nil {
		t.Fatalf("create bob task: %v", err)
	}

	// Same tag name under different owners must be distinct rows, so
	// alice filtering by "home" never sees bob's task.
	aliceTasks, err := s.ListTasks("alice", TaskFilter{Tag: "home"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(aliceTasks) != 1 || aliceTasks[0].Title != "a" {
		t.Errorf("alice sees %d tasks, want her own only", len(aliceTasks))
	}
}

func TestOwnershipIsolation(t *testing.T) {
	s := newTestStore(t)

	task, err := s.CreateTask("bob", CreateTaskParams{Title: "bob's secret"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Every owner-filtered operation must treat bob's task id as
	// nonexistent for alice.
	if _, err := s.GetTask("alice", task.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetTask error = %v, want ErrNotFound", err)
	}
	if _, _, err := s.CompleteTask("alice", task.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("CompleteTask error = %v, want ErrNotFound", err)
	}
	title := "stolen"
	if _, err := s.UpdateTask("alice", task.ID, UpdateTaskParams{Title: &title}); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateTask error = %v, want ErrNotFound", err)
	}
	if _, err := s.DeleteTask("alice", task.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteTask error = %v, want ErrNotFound", err)
	}

	// Bob's task must be untouched by all of the above.
	got, err := s.GetTask("bob", task.ID)
	if err != nil {
		t.Fatalf("bob's task disappeared: %v", err)
	}
	if got.Title != "bob's secret" || got.Status != StatusIncomplete {
		t.Errorf("bob's task was mutated: %+v", got)
	}
}

func TestCompleteTask_Idempotent(t *testing.T) {
	s := newTestStore(t)

	task, err := s.CreateTask("alice", CreateTaskParams{Title: "laundry"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	first, already, err := s.CompleteTask("alice", task.ID)
	if err != nil {
		t.Fatalf("first complete: %v", err)
	}
	if already {
		t.Error("first completion reported already-complete")
	}
	if first.Status != StatusComplete || first.CompletedAt == nil {
		t.Fatalf("first complete left task %+v", first)
	}

	time.Sleep(10 * time.Millisecond)

	second, already, err := s.CompleteTask("alice", task.ID)
	if err != nil {
		t.Fatalf("second complete: %v", err)
	}
	if !already {
		t.Error("second completion did not report already-complete")
	}
	if !second.CompletedAt.Equal(*first.CompletedAt) {
		t.Errorf("completion timestamp changed: %v → %v", first.CompletedAt, second.CompletedAt)
	}
}

func TestUpdateTask_TagReplacementIsTotal(t *testing.T) {
	s := newTestStore(t)

	task, err := s.CreateTask("alice", CreateTaskParams{
		Title: "groceries",
		Tags:  []string{"errands", "food"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := s.UpdateTask("alice", task.ID, UpdateTaskParams{
		Tags:    []string{"food", "weekly"},
		TagsSet: true,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	want := []string{"food", "weekly"}
	if len(updated.Tags) != len(want) {
		t.Fatalf("tags = %v, want %v", updated.Tags, want)
	}
	for i := range want {
		if updated.Tags[i] != want[i] {
			t.Errorf("tags = %v, want %v", updated.Tags, want)
		}
	}
}

func TestUpdateTask_OmittedTagsUntouched(t *testing.T) {
	s := newTestStore(t)

	task, err := s.CreateTask("alice", CreateTaskParams{Title: "t", Tags: []string{"keep"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	title := "renamed"
	updated, err := s.UpdateTask("alice", task.ID, UpdateTaskParams{Title: &title})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	if updated.Title != "renamed" {
		t.Errorf("title = %q", updated.Title)
	}
	if len(updated.Tags) != 1 || updated.Tags[0] != "keep" {
		t.Errorf("tags = %v, want [keep]", updated.Tags)
	}
}

func TestUpdateTask_ClearDueDate(t *testing.T) {
	s := newTestStore(t)

	due := time.Now().Add(24 * time.Hour).UTC()
	task, err := s.CreateTask("alice", CreateTaskParams{Title: "t", DueDate: &due})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := s.UpdateTask("alice", task.ID, UpdateTaskParams{DueDateSet: true})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.DueDate != nil {
		t.Errorf("due date = %v, want cleared", updated.DueDate)
	}
}

func TestUpdateTask_NeverTouchesStatus(t *testing.T) {
	s := newTestStore(t)

	task, err := s.CreateTask("alice", CreateTaskParams{Title: "t"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := s.CompleteTask("alice", task.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	title := "still done"
	updated, err := s.UpdateTask("alice", task.ID, UpdateTaskParams{Title: &title})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != StatusComplete {
		t.Errorf("status = %q, update must not change it", updated.Status)
	}
}

func TestDeleteTask_CascadesAssociations(t *testing.T) {
	s := newTestStore(t)

	task, err := s.CreateTask("alice", CreateTaskParams{Title: "doomed", Tags: []string{"a", "b"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	title, err := s.DeleteTask("alice", task.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if title != "doomed" {
		t.Errorf("returned title = %q, want doomed", title)
	}

	n, err := s.TagAssociationCount(task.ID)
	if err != nil {
		t.Fatalf("association count: %v", err)
	}
	if n != 0 {
		t.Errorf("%d tag associations survive deletion", n)
	}

	// A second delete behaves like any other missing task.
	if _, err := s.DeleteTask("alice", task.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete error = %v, want ErrNotFound", err)
	}
}

func TestListTasks_FiltersAndOrder(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.CreateTask("alice", CreateTaskParams{Title: "old", Priority: PriorityHigh}); err != nil {
		t.Fatalf("create: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := s.CreateTask("alice", CreateTaskParams{Title: "new", Priority: PriorityHigh}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.CreateTask("alice", CreateTaskParams{Title: "low", Priority: PriorityLow}); err != nil {
		t.Fatalf("create: %v", err)
	}

	tasks, err := s.ListTasks("alice", TaskFilter{Priority: PriorityHigh})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("got %d tasks, want 2", len(tasks))
	}
	if tasks[0].Title != "new" {
		t.Errorf("first task = %q, want newest first", tasks[0].Title)
	}
}

func TestListTasks_LimitClamped(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 3; i++ {
		if _, err := s.CreateTask("alice", CreateTaskParams{Title: "t"}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	tasks, err := s.ListTasks("alice", TaskFilter{Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 2 {
		t.Errorf("got %d tasks, want 2", len(tasks))
	}
}
