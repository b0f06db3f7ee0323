package api

import (
	"net/http"
	"testing"

	"github.com/davenby/taskpilot/internal/llm"
	"github.com/davenby/taskpilot/internal/store"
)

func newTaskEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnv(t, &scriptedModel{responses: []llm.ChatResponse{answer("ok")}})
}

func TestTaskCreateAndGet(t *testing.T) {
	env := newTaskEnv(t)
	token := env.token(t, "alice")

	resp := env.request(t, http.MethodPost, "/v1/tasks", token, taskCreateRequest{
		Title:    "water plants",
		Priority: "HIGH",
		DueDate:  "2026-09-15",
		Tags:     []string{"home"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	created := decode[store.Task](t, resp)
	if created.Priority != store.PriorityHigh || created.Status != store.StatusIncomplete {
		t.Errorf("task = %+v", created)
	}
	if created.DueDate == nil {
		t.Error("due date not set")
	}

	got := decode[store.Task](t, env.request(t, http.MethodGet, "/v1/tasks/"+created.ID, token, nil))
	if got.Title != "water plants" || len(got.Tags) != 1 {
		t.Errorf("got = %+v", got)
	}
}

func TestTaskCreate_Validation(t *testing.T) {
	env := newTaskEnv(t)
	token := env.token(t, "alice")

	tests := []struct {
		name string
		body taskCreateRequest
	}{
		{"missing title", taskCreateRequest{}},
		{"bad priority", taskCreateRequest{Title: "t", Priority: "URGENT"}},
		{"bad due date", taskCreateRequest{Title: "t", DueDate: "someday"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.request(t, http.MethodPost, "/v1/tasks", token, tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestTaskList_FilterAndLimit(t *testing.T) {
	env := newTaskEnv(t)
	token := env.token(t, "alice")

	for _, p := range []string{"LOW", "HIGH", "HIGH"} {
		if _, err := env.store.CreateTask("alice", store.CreateTaskParams{Title: "t", Priority: p}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	list := decode[map[string]any](t, env.request(t, http.MethodGet, "/v1/tasks?priority=HIGH", token, nil))
	if list["count"].(float64) != 2 {
		t.Errorf("count = %v", list["count"])
	}

	bad := env.request(t, http.MethodGet, "/v1/tasks?limit=500", token, nil)
	if bad.StatusCode != http.StatusBadRequest {
		t.Errorf("oversized limit status = %d, want 400", bad.StatusCode)
	}
}

func TestTaskUpdate_PartialAndClearDueDate(t *testing.T) {
	env := newTaskEnv(t)
	token := env.token(t, "alice")

	due := "2026-09-15"
	created, err := env.store.CreateTask("alice", store.CreateTaskParams{Title: "t"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	withDue := decode[store.Task](t, env.request(t, http.MethodPatch, "/v1/tasks/"+created.ID, token,
		taskUpdateRequest{DueDate: &due}))
	if withDue.DueDate == nil {
		t.Fatal("due date not set")
	}

	empty := ""
	cleared := decode[store.Task](t, env.request(t, http.MethodPatch, "/v1/tasks/"+created.ID, token,
		taskUpdateRequest{DueDate: &empty}))
	if cleared.DueDate != nil {
		t.Error("due date not cleared")
	}

	noFields := env.request(t, http.MethodPatch, "/v1/tasks/"+created.ID, token, taskUpdateRequest{})
	if noFields.StatusCode != http.StatusBadRequest {
		t.Errorf("empty update status = %d, want 400", noFields.StatusCode)
	}
}

func TestTaskCompleteAndDelete(t *testing.T) {
	env := newTaskEnv(t)
	token := env.token(t, "alice")

	created, err := env.store.CreateTask("alice", store.CreateTaskParams{Title: "temp"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	first := decode[map[string]any](t, env.request(t, http.MethodPost, "/v1/tasks/"+created.ID+"/complete", token, nil))
	if first["already_complete"].(bool) {
		t.Error("first completion reported already_complete")
	}
	second := decode[map[string]any](t, env.request(t, http.MethodPost, "/v1/tasks/"+created.ID+"/complete", token, nil))
	if !second["already_complete"].(bool) {
		t.Error("second completion not reported already_complete")
	}

	del := decode[map[string]string](t, env.request(t, http.MethodDelete, "/v1/tasks/"+created.ID, token, nil))
	if del["deleted"] != "temp" {
		t.Errorf("deleted = %q", del["deleted"])
	}

	gone := env.request(t, http.MethodGet, "/v1/tasks/"+created.ID, token, nil)
	if gone.StatusCode != http.StatusNotFound {
		t.Errorf("status after delete = %d, want 404", gone.StatusCode)
	}
}

func TestTaskEndpoints_OwnerIsolation(t *testing.T) {
	env := newTaskEnv(t)

	bobTask, err := env.store.CreateTask("bob", store.CreateTaskParams{Title: "private"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	alice := env.token(t, "alice")
	paths := map[string]string{
		http.MethodGet:    "/v1/tasks/" + bobTask.ID,
		http.MethodDelete: "/v1/tasks/" + bobTask.ID,
		http.MethodPost:   "/v1/tasks/" + bobTask.ID + "/complete",
	}
	for method, path := range paths {
		resp := env.request(t, method, path, alice, nil)
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s %s status = %d, want 404", method, path, resp.StatusCode)
		}
	}
}
