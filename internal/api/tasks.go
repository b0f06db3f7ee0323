package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/gorilla/mux"

	"github.com/davenby/taskpilot/internal/auth"
	"github.com/davenby/taskpilot/internal/store"
)

// taskCreateRequest is the body for POST /v1/tasks.
type taskCreateRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Priority    string   `json:"priority,omitempty"`
	DueDate     string   `json:"due_date,omitempty"` // RFC 3339 or YYYY-MM-DD
	Tags        []string `json:"tags,omitempty"`
}

// taskUpdateRequest is the body for PATCH /v1/tasks/{id}. Pointer
// fields distinguish "absent" from "set to empty"; an explicit empty
// due_date clears it.
type taskUpdateRequest struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Priority    *string   `json:"priority,omitempty"`
	DueDate     *string   `json:"due_date,omitempty"`
	Tags        *[]string `json:"tags,omitempty"`
}

func (s *Server) handleTaskCreate(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.OwnerID(r.Context())

	var req taskCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Title == "" || utf8.RuneCountInString(req.Title) > 500 {
		s.errorResponse(w, http.StatusBadRequest, "title is required and must be at most 500 characters")
		return
	}
	if utf8.RuneCountInString(req.Description) > 2000 {
		s.errorResponse(w, http.StatusBadRequest, "description must be at most 2000 characters")
		return
	}
	if req.Priority != "" && !validPriority(req.Priority) {
		s.errorResponse(w, http.StatusBadRequest, "priority must be LOW, MEDIUM or HIGH")
		return
	}

	var due *time.Time
	if req.DueDate != "" {
		parsed, err := parseDate(req.DueDate)
		if err != nil {
			s.errorResponse(w, http.StatusBadRequest, "due_date must be RFC 3339 or YYYY-MM-DD")
			return
		}
		due = &parsed
	}

	task, err := s.store.CreateTask(ownerID, store.CreateTaskParams{
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		DueDate:     due,
		Tags:        req.Tags,
	})
	if err != nil {
		s.storeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, task)
}

func (s *Server) handleTaskList(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.OwnerID(r.Context())
	q := r.URL.Query()

	filter := store.TaskFilter{
		Status:   q.Get("status"),
		Priority: q.Get("priority"),
		Tag:      q.Get("tag"),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 100 {
			s.errorResponse(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		filter.Limit = limit
	}

	tasks, err := s.store.ListTasks(ownerID, filter)
	if err != nil {
		s.storeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"tasks": tasks,
		"count": len(tasks),
	})
}

func (s *Server) handleTaskGet(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.OwnerID(r.Context())

	task, err := s.store.GetTask(ownerID, mux.Vars(r)["id"])
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleTaskUpdate(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.OwnerID(r.Context())

	var req taskUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	params := store.UpdateTaskParams{
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
	}
	if req.Title != nil && (*req.Title == "" || utf8.RuneCountInString(*req.Title) > 500) {
		s.errorResponse(w, http.StatusBadRequest, "title must be 1 to 500 characters")
		return
	}
	if req.Description != nil && utf8.RuneCountInString(*req.Description) > 2000 {
		s.errorResponse(w, http.StatusBadRequest, "description must be at most 2000 characters")
		return
	}
	if req.Priority != nil && !validPriority(*req.Priority) {
		s.errorResponse(w, http.StatusBadRequest, "priority must be LOW, MEDIUM or HIGH")
		return
	}
	if req.DueDate != nil {
		params.DueDateSet = true
		if *req.DueDate != "" {
			parsed, err := parseDate(*req.DueDate)
			if err != nil {
				s.errorResponse(w, http.StatusBadRequest, "due_date must be RFC 3339 or YYYY-MM-DD")
				return
			}
			params.DueDate = &parsed
		}
	}
	if req.Tags != nil {
		params.TagsSet = true
		params.Tags = *req.Tags
	}

	if params.Empty() {
		s.errorResponse(w, http.StatusBadRequest, "at least one field must be provided")
		return
	}

	task, err := s.store.UpdateTask(ownerID, mux.Vars(r)["id"], params)
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleTaskComplete(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.OwnerID(r.Context())

	task, already, err := s.store.CompleteTask(ownerID, mux.Vars(r)["id"])
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"task":             task,
		"already_complete": already,
	})
}

func (s *Server) handleTaskDelete(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.OwnerID(r.Context())

	title, err := s.store.DeleteTask(ownerID, mux.Vars(r)["id"])
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"deleted": title})
}

func validPriority(p string) bool {
	return p == store.PriorityLow || p == store.PriorityMedium || p == store.PriorityHigh
}

// parseDate accepts RFC 3339 timestamps or bare dates.
func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
