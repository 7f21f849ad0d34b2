// Package agent answers natural-language questions about a CSV table using
// a Gemini model. A Session keeps the conversation history in memory for
// follow-up questions; nothing is persisted.
package agent

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/dvloznov/billing-reporter/internal/logger"
	"github.com/dvloznov/billing-reporter/internal/persist"
)

// DefaultMaxRows caps how many table rows are placed in the prompt.
const DefaultMaxRows = 500

// Generator is the model call a Session depends on. (*genai.Models)
// satisfies it.
type Generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// NewGeminiGenerator creates a Gemini API client.
func NewGeminiGenerator(ctx context.Context, apiKey string) (Generator, error) {
	if apiKey == "" {
		return nil, errors.New("NewGeminiGenerator: GEMINI_API_KEY is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiGenerator: create genai client: %w", err)
	}
	return client.Models, nil
}

// Session is one conversation about one table.
type Session struct {
	gen     Generator
	model   string
	source  string
	table   *persist.Table
	maxRows int
	history []*genai.Content
}

// NewSession starts a conversation about table, which was loaded from
// source (a path or URI, used only in the prompt).
func NewSession(gen Generator, model, source string, table *persist.Table) *Session {
	return &Session{
		gen:     gen,
		model:   model,
		source:  source,
		table:   table,
		maxRows: DefaultMaxRows,
	}
}

// SetMaxRows changes how many rows are sent with each question.
func (s *Session) SetMaxRows(n int) {
	if n > 0 {
		s.maxRows = n
	}
}

// Ask sends question with the full history and records both turns.
func (s *Session) Ask(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", errors.New("Ask: empty question")
	}

	sys, err := s.systemInstruction()
	if err != nil {
		return "", fmt.Errorf("Ask: %w", err)
	}

	turn := &genai.Content{Role: "user", Parts: []*genai.Part{{Text: question}}}
	contents := append(append([]*genai.Content(nil), s.history...), turn)

	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: sys}}},
		Temperature:       genai.Ptr[float32](0),
	}

	log := logger.FromContext(ctx)
	log.Debug().Str("model", s.model).Int("history", len(s.history)).Msg("asking model")

	resp, err := s.gen.GenerateContent(ctx, s.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("Ask: generate content: %w", err)
	}
	answer := strings.TrimSpace(resp.Text())
	if answer == "" {
		return "", errors.New("Ask: empty response from model")
	}

	s.history = append(s.history, turn, &genai.Content{Role: "model", Parts: []*genai.Part{{Text: answer}}})
	return answer, nil
}

// History returns the conversation so far, oldest first.
func (s *Session) History() []*genai.Content {
	return append([]*genai.Content(nil), s.history...)
}

// Reset clears the conversation.
func (s *Session) Reset() {
	s.history = nil
}

func (s *Session) systemInstruction() (string, error) {
	if s.table == nil || len(s.table.Columns) == 0 {
		return "", errors.New("table has no columns")
	}

	rows := s.table.Rows
	truncated := false
	if len(rows) > s.maxRows {
		rows = rows[:s.maxRows]
		truncated = true
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(s.table.Columns); err != nil {
		return "", err
	}
	if err := w.WriteAll(rows); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("You answer questions about billing data using only the table below.\n")
	b.WriteString("Monetary columns ending in _balance are already formatted in US dollars.\n")
	b.WriteString("Other monetary amounts are in cents; divide by 100 for dollars.\n")
	b.WriteString("If the table cannot answer the question, say so.\n\n")
	fmt.Fprintf(&b, "Table source: %s\n", s.source)
	fmt.Fprintf(&b, "Rows: %d", len(s.table.Rows))
	if truncated {
		fmt.Fprintf(&b, " (first %d shown)", len(rows))
	}
	b.WriteString("\n\n")
	b.Write(buf.Bytes())
	return b.String(), nil
}
