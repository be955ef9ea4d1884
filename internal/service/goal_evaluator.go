package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/techkwon/Qbot/internal/models"
	"github.com/techkwon/Qbot/pkg/llm"
)

// ErrIncompleteVerdict is returned when the evaluator skipped a goal.
var ErrIncompleteVerdict = errors.New("evaluator omitted a goal")

// GoalEvaluator judges a transcript against a chatbot's learning goals, one verdict per goal.
type GoalEvaluator interface {
	Evaluate(ctx context.Context, transcript []models.ChatMessage, goals []models.LearningGoal) ([]models.GoalVerdict, error)
}

type jsonCompleter interface {
	CompleteJSON(ctx context.Context, system, user string, out interface{}) error
}

const evaluatorSystemPrompt = `You assess whether a student reached learning goals during a tutoring conversation.
For every goal decide if the student's own messages show the goal was achieved. Keywords are hints, not requirements.
Answer with a JSON object of the form {"results":[{"goal_id":"...","achieved":true,"reason":"..."}]}.
Return exactly one result per goal id. Keep each reason under 200 characters and write it in the language of the conversation.`

// LLMGoalEvaluator evaluates goals with a single JSON completion.
type LLMGoalEvaluator struct {
	client jsonCompleter
	logger *zap.Logger
}

// NewLLMGoalEvaluator wraps an LLM client. A nil client fails every evaluation with llm.ErrNotConfigured,
// which leaves results pending.
func NewLLMGoalEvaluator(client jsonCompleter, logger *zap.Logger) *LLMGoalEvaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMGoalEvaluator{client: client, logger: logger}
}

type verdictEnvelope struct {
	Results []models.GoalVerdict `json:"results"`
}

// Evaluate implements GoalEvaluator.
func (e *LLMGoalEvaluator) Evaluate(ctx context.Context, transcript []models.ChatMessage, goals []models.LearningGoal) ([]models.GoalVerdict, error) {
	if len(goals) == 0 {
		return nil, nil
	}
	if e.client == nil {
		return nil, llm.ErrNotConfigured
	}
	var out verdictEnvelope
	if err := e.client.CompleteJSON(ctx, evaluatorSystemPrompt, buildEvaluationPrompt(transcript, goals), &out); err != nil {
		return nil, err
	}

	byGoal := make(map[string]models.GoalVerdict, len(out.Results))
	for _, v := range out.Results {
		byGoal[strings.TrimSpace(v.GoalID)] = v
	}
	verdicts := make([]models.GoalVerdict, 0, len(goals))
	for _, goal := range goals {
		v, ok := byGoal[goal.ID]
		if !ok {
			e.logger.Warn("evaluator omitted goal", zap.String("goal_id", goal.ID), zap.Int("results", len(out.Results)))
			return nil, fmt.Errorf("%w: %s", ErrIncompleteVerdict, goal.ID)
		}
		verdicts = append(verdicts, models.GoalVerdict{GoalID: goal.ID, Achieved: v.Achieved, Reason: strings.TrimSpace(v.Reason)})
	}
	return verdicts, nil
}

func buildEvaluationPrompt(transcript []models.ChatMessage, goals []models.LearningGoal) string {
	var b strings.Builder
	b.WriteString("Learning goals:\n")
	for _, goal := range goals {
		fmt.Fprintf(&b, "- id=%s: %s", goal.ID, goal.Text)
		if len(goal.Keywords) > 0 {
			fmt.Fprintf(&b, " (keywords: %s)", strings.Join(goal.Keywords, ", "))
		}
		b.WriteString("\n")
	}
	b.WriteString("\nConversation:\n")
	for _, msg := range transcript {
		speaker := "Student"
		if msg.Role == models.MessageRoleAssistant {
			speaker = "Tutor"
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, msg.Content)
	}
	return b.String()
}
