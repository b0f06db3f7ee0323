package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gorilla/mux"
	"github.com/yuin/goldmark"

	"github.com/davenby/taskpilot/internal/agent"
	"github.com/davenby/taskpilot/internal/auth"
	"github.com/davenby/taskpilot/internal/metrics"
	"github.com/davenby/taskpilot/internal/store"
)

// MaxMessageLen bounds a single chat message.
const MaxMessageLen = 5000

// ChatRequest is the body for POST /v1/chat. The owner is never part
// of the body; it comes from the bearer token.
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	// RenderHTML asks for the reply rendered from Markdown to HTML in
	// addition to the raw text.
	RenderHTML bool `json:"render_html,omitempty"`
}

// ChatResponse is the reply for POST /v1/chat.
type ChatResponse struct {
	ConversationID string                 `json:"conversation_id"`
	MessageID      string                 `json:"message_id"`
	Reply          string                 `json:"reply"`
	ReplyHTML      string                 `json:"reply_html,omitempty"`
	Outcome        string                 `json:"outcome"`
	ToolCalls      []agent.ToolCallRecord `json:"tool_calls,omitempty"`
}

// handleChat runs one chat turn: persist the user's message, load the
// bounded context, run the orchestrator, persist what it produced, and
// answer. The user message is stored before the model is contacted so
// a provider failure never loses what the user said.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.OwnerID(r.Context())

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		s.errorResponse(w, http.StatusBadRequest, "message is required")
		return
	}
	if utf8.RuneCountInString(req.Message) > MaxMessageLen {
		s.errorResponse(w, http.StatusBadRequest, "message exceeds 5000 characters")
		return
	}

	conv, err := s.resolveConversation(ownerID, req.ConversationID)
	if err != nil {
		s.storeError(w, err)
		return
	}

	if _, err := s.store.AddMessage(conv.ID, store.RoleUser, msg, ""); err != nil {
		s.storeError(w, err)
		return
	}

	turnContext, err := s.history.LoadContext(r.Context(), conv.ID, ownerID)
	if err != nil {
		s.storeError(w, err)
		return
	}

	result := s.loop.Run(r.Context(), ownerID, turnContext)

	metrics.ChatTurn(string(result.Outcome))
	for _, tc := range result.ToolCalls {
		metrics.ToolExecution(tc.Tool, tc.Status)
	}
	s.recordUsage(r, ownerID, conv.ID, result)

	var replyID string
	for _, pm := range result.Messages {
		stored, err := s.store.AddMessage(conv.ID, pm.Role, pm.Content, pm.ToolCalls)
		if err != nil {
			s.storeError(w, err)
			return
		}
		if pm.Role == store.RoleAssistant {
			replyID = stored.ID
		}
	}

	resp := ChatResponse{
		ConversationID: conv.ID,
		MessageID:      replyID,
		Reply:          result.Reply,
		Outcome:        string(result.Outcome),
		ToolCalls:      result.ToolCalls,
	}
	if req.RenderHTML {
		resp.ReplyHTML = renderMarkdown(result.Reply)
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// resolveConversation returns the named conversation, owner-checked,
// or creates a new one when no id was supplied.
func (s *Server) resolveConversation(ownerID, conversationID string) (*store.Conversation, error) {
	if conversationID != "" {
		return s.store.GetConversation(ownerID, conversationID)
	}
	return s.store.CreateConversation(ownerID)
}

// renderMarkdown converts the model's Markdown reply to HTML. Render
// errors fall back to the raw text; the reply is never lost.
func renderMarkdown(text string) string {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(text), &buf); err != nil {
		return text
	}
	return buf.String()
}

func (s *Server) handleConversationList(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.OwnerID(r.Context())

	convs, err := s.store.ListConversations(ownerID, 50)
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"conversations": convs,
		"count":         len(convs),
	})
}

func (s *Server) handleConversationGet(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.OwnerID(r.Context())
	id := mux.Vars(r)["id"]

	conv, err := s.store.GetConversation(ownerID, id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	messages, err := s.store.GetMessages(conv.ID)
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"conversation": conv,
		"messages":     messages,
	})
}
