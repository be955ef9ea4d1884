package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/techkwon/Qbot/internal/models"
)

const chatbotColumns = `id, teacher_id, name, description, system_prompt, allowed_classes, max_attempts, created_at, updated_at`

// ChatbotRepository persists chatbots and their learning goals.
type ChatbotRepository struct {
	db *sqlx.DB
}

// NewChatbotRepository constructs the repository.
func NewChatbotRepository(db *sqlx.DB) *ChatbotRepository {
	return &ChatbotRepository{db: db}
}

// FindByID returns a chatbot with its goals.
func (r *ChatbotRepository) FindByID(ctx context.Context, id string) (*models.Chatbot, error) {
	const query = `SELECT ` + chatbotColumns + ` FROM chatbots WHERE id = $1`
	var bot models.Chatbot
	if err := r.db.GetContext(ctx, &bot, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find chatbot: %w", err)
	}
	goals, err := r.ListGoals(ctx, id)
	if err != nil {
		return nil, err
	}
	bot.Goals = goals
	return &bot, nil
}

// FindConfig loads only what ownership and gate checks read.
func (r *ChatbotRepository) FindConfig(ctx context.Context, id string) (*models.ChatbotConfig, error) {
	return findChatbotConfig(ctx, r.db, id)
}

func findChatbotConfig(ctx context.Context, db sqlx.QueryerContext, id string) (*models.ChatbotConfig, error) {
	const query = `SELECT id, teacher_id, name, allowed_classes, max_attempts FROM chatbots WHERE id = $1`
	var bot models.Chatbot
	if err := sqlx.GetContext(ctx, db, &bot, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find chatbot config: %w", err)
	}
	return bot.Config(), nil
}

// ListByTeacher returns the teacher's chatbots newest first, without goals.
func (r *ChatbotRepository) ListByTeacher(ctx context.Context, teacherID string) ([]models.Chatbot, error) {
	const query = `SELECT ` + chatbotColumns + ` FROM chatbots WHERE teacher_id = $1 ORDER BY created_at DESC`
	var bots []models.Chatbot
	if err := r.db.SelectContext(ctx, &bots, query, teacherID); err != nil {
		return nil, fmt.Errorf("list chatbots: %w", err)
	}
	return bots, nil
}

// ListGoals returns a chatbot's goals in display order.
func (r *ChatbotRepository) ListGoals(ctx context.Context, chatbotID string) ([]models.LearningGoal, error) {
	const query = `SELECT id, chatbot_id, text, keywords, position FROM learning_goals WHERE chatbot_id = $1 ORDER BY position`
	var goals []models.LearningGoal
	if err := r.db.SelectContext(ctx, &goals, query, chatbotID); err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	return goals, nil
}

// Create inserts the chatbot and its goals atomically.
func (r *ChatbotRepository) Create(ctx context.Context, bot *models.Chatbot) (err error) {
	if bot.ID == "" {
		bot.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	bot.CreatedAt = now
	bot.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create chatbot tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO chatbots (` + chatbotColumns + `) VALUES (:id, :teacher_id, :name, :description, :system_prompt, :allowed_classes, :max_attempts, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, query, bot); err != nil {
		return fmt.Errorf("create chatbot: %w", err)
	}
	if err = insertGoals(ctx, tx, bot.ID, bot.Goals); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create chatbot: %w", err)
	}
	return nil
}

// Update rewrites the configuration and replaces the goal set. Only the owner's row is touched.
func (r *ChatbotRepository) Update(ctx context.Context, bot *models.Chatbot) (err error) {
	bot.UpdatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update chatbot tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `UPDATE chatbots SET name = :name, description = :description, system_prompt = :system_prompt, allowed_classes = :allowed_classes, max_attempts = :max_attempts, updated_at = :updated_at WHERE id = :id AND teacher_id = :teacher_id`
	res, err := tx.NamedExecContext(ctx, query, bot)
	if err != nil {
		return fmt.Errorf("update chatbot: %w", err)
	}
	if err = expectAffected(res); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM learning_goals WHERE chatbot_id = $1`, bot.ID); err != nil {
		return fmt.Errorf("clear goals: %w", err)
	}
	if err = insertGoals(ctx, tx, bot.ID, bot.Goals); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit update chatbot: %w", err)
	}
	return nil
}

// Delete removes the owner's chatbot; sessions, goals and evaluations cascade.
func (r *ChatbotRepository) Delete(ctx context.Context, teacherID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM chatbots WHERE id = $1 AND teacher_id = $2`, id, teacherID)
	if err != nil {
		return fmt.Errorf("delete chatbot: %w", err)
	}
	return expectAffected(res)
}

func insertGoals(ctx context.Context, tx *sqlx.Tx, chatbotID string, goals []models.LearningGoal) error {
	const query = `INSERT INTO learning_goals (id, chatbot_id, text, keywords, position) VALUES (:id, :chatbot_id, :text, :keywords, :position)`
	for i := range goals {
		goal := &goals[i]
		if goal.ID == "" {
			goal.ID = uuid.NewString()
		}
		goal.ChatbotID = chatbotID
		goal.Position = i
		if _, err := tx.NamedExecContext(ctx, query, goal); err != nil {
			return fmt.Errorf("insert goal: %w", err)
		}
	}
	return nil
}
