package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/techkwon/Qbot/internal/models"
	appErrors "github.com/techkwon/Qbot/pkg/errors"
	"github.com/techkwon/Qbot/pkg/export"
	"github.com/techkwon/Qbot/pkg/storage"
)

type evaluationLister interface {
	List(ctx context.Context, chatbotID, studentID string) ([]models.GoalEvaluation, error)
}

type datasetRenderer interface {
	Render(format export.Format, data export.Dataset) ([]byte, error)
}

// ExportFile is a rendered report ready to stream.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders goal achievement reports.
type ExportService struct {
	evaluations evaluationLister
	ownership   chatbotOwnership
	renderer    datasetRenderer
	logger      *zap.Logger
	now         func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(evaluations evaluationLister, ownership chatbotOwnership, renderer datasetRenderer, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if renderer == nil {
		renderer = export.NewRenderer()
	}
	return &ExportService{evaluations: evaluations, ownership: ownership, renderer: renderer, logger: logger, now: time.Now}
}

// EvaluationReport renders every stored verdict on an owned chatbot as CSV or PDF.
func (s *ExportService) EvaluationReport(ctx context.Context, teacherID, chatbotID, rawFormat string) (*ExportFile, error) {
	format, err := export.ParseFormat(rawFormat)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "format must be csv or pdf")
	}
	config, err := s.ownership.AssertOwnsChatbot(ctx, teacherID, chatbotID)
	if err != nil {
		return nil, err
	}

	rows, err := s.evaluations.List(ctx, config.ID, "")
	if err != nil {
		return nil, storeError(err, "failed to load evaluations")
	}

	data := evaluationDataset(rows)
	data.Title = fmt.Sprintf("Goal achievement: %s", config.Name)
	data.GeneratedAt = s.now()
	payload, err := s.renderer.Render(format, data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report")
	}

	s.logger.Info("evaluation report exported", zap.String("chatbot_id", config.ID), zap.String("format", string(format)), zap.Int("rows", len(rows)))
	return &ExportFile{
		Filename:    s.buildFilename(config.Name, format),
		ContentType: format.ContentType(),
		Data:        payload,
	}, nil
}

func (s *ExportService) buildFilename(chatbotName string, format export.Format) string {
	base := storage.SanitizeFilename(chatbotName)
	return fmt.Sprintf("%s-goals-%s.%s", base, s.now().UTC().Format("20060102"), format.Extension())
}

var evaluationColumns = []export.Column{
	{Title: "Student", Weight: 1.2},
	{Title: "Goal", Weight: 2.5},
	{Title: "Achieved", Weight: 0.7},
	{Title: "Reason", Weight: 3.5},
	{Title: "Status", Weight: 0.8},
	{Title: "Evaluated At", Weight: 1.3},
}

func evaluationDataset(rows []models.GoalEvaluation) export.Dataset {
	data := export.Dataset{Columns: evaluationColumns, Rows: make([][]string, 0, len(rows))}
	for _, row := range rows {
		data.Rows = append(data.Rows, []string{
			row.StudentName,
			row.GoalText,
			achievedLabel(row),
			row.Reason,
			string(row.Status),
			row.EvaluatedAt.UTC().Format(time.RFC3339),
		})
	}
	return data
}

func achievedLabel(row models.GoalEvaluation) string {
	switch {
	case row.Status == models.EvaluationPending && row.Reason == "":
		return "-"
	case row.Achieved:
		return "yes"
	default:
		return "no"
	}
}
