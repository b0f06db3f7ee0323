// Package prompts contains the LLM prompt templates used by Taskpilot.
package prompts

import "fmt"

// System is the system prompt for the task agent. Tool descriptions
// are supplied separately as schemas; this only sets behavior.
const System = `You are Taskpilot, an assistant that manages the user's todo list.
Use the provided tools to add, list, complete, update, and delete the user's tasks.
When a tool returns an error, explain the problem to the user plainly and do not retry the same call.
Answer concisely. Confirm every change you make.`

// summaryTemplate is the prompt sent to the model to condense older
// conversation history when the context budget is exceeded. The single
// format verb is the conversation text.
const summaryTemplate = `Summarize this conversation concisely. Focus on:
1. Tasks the user created, completed, updated, or deleted
2. Preferences the user expressed
3. Any open items or follow-ups

Keep the summary under 300 words. Use bullet points.

Conversation:
%s

Summary:`

// SummaryPrompt returns the interpolated summarization prompt. The
// caller passes the formatted conversation text (role: content pairs).
func SummaryPrompt(conversationText string) string {
	return fmt.Sprintf(summaryTemplate, conversationText)
}

// UpstreamUnavailable is the user-facing message when the model
// provider cannot be reached (circuit open or call failed).
const UpstreamUnavailable = "Sorry, I'm having trouble reaching my language model right now. Your message was saved, so please try again in a minute."

// OrchestrationExhausted is the user-facing message when the agent
// hits its iteration cap without producing a final answer.
const OrchestrationExhausted = "I couldn't finish working on that request. Please try again, or rephrase it."

// EmptyResponseFallback is returned when the model produces neither
// tool calls nor content.
const EmptyResponseFallback = "I processed your request but wasn't able to compose a response. Please try again."
