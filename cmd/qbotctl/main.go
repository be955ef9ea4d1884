package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/techkwon/Qbot/internal/dto"
	"github.com/techkwon/Qbot/internal/models"
	"github.com/techkwon/Qbot/internal/repository"
	"github.com/techkwon/Qbot/internal/service"
	"github.com/techkwon/Qbot/pkg/config"
	"github.com/techkwon/Qbot/pkg/database"
	"github.com/techkwon/Qbot/pkg/llm"
	"github.com/techkwon/Qbot/pkg/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	e := &env{}
	defer e.close()

	if err := newRootCommand(e).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// env holds the resources shared by every subcommand. It is filled lazily so `--help` needs no database.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *sqlx.DB
}

func (e *env) open() error {
	if e.db != nil {
		return nil
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	e.cfg, e.logger, e.db = cfg, logr, db
	return nil
}

func (e *env) close() {
	if e.db != nil {
		_ = e.db.Close()
	}
	if e.logger != nil {
		_ = e.logger.Sync()
	}
}

func newRootCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "qbotctl",
		Short:         "Administrative tooling for the Qbot API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newMigrateCommand(e))
	cmd.AddCommand(newEvaluationsCommand(e))
	cmd.AddCommand(newAttemptsCommand(e))
	cmd.AddCommand(newUsersCommand(e))
	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func newMigrateCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.open(); err != nil {
				return err
			}
			return database.Migrate(commandContext(cmd), e.db)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.open(); err != nil {
				return err
			}
			return database.MigrateDown(commandContext(cmd), e.db)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the state of every migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.open(); err != nil {
				return err
			}
			return database.MigrationStatus(commandContext(cmd), e.db)
		},
	})
	return cmd
}

func newEvaluationsCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluations",
		Short: "Goal evaluation maintenance",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Re-evaluate every (student, chatbot) pair with pending goals",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.open(); err != nil {
				return err
			}
			client, err := llm.New(e.cfg.LLM, e.logger)
			if err != nil {
				return fmt.Errorf("init llm client: %w", err)
			}
			chatbots := repository.NewChatbotRepository(e.db)
			gate := repository.NewUsageGateRepository(e.db)
			svc := service.NewEvaluationService(service.EvaluationServiceParams{
				Evaluations: repository.NewEvaluationRepository(e.db),
				Goals:       chatbots,
				Transcripts: repository.NewMessageRepository(e.db),
				Students:    repository.NewStudentRepository(e.db),
				Ownership:   service.NewAttemptService(gate, nil, nil, nil, nil, e.logger),
				Evaluator:   service.NewLLMGoalEvaluator(client, e.logger),
				Logger:      e.logger,
			})
			completed, err := svc.SweepPending(commandContext(cmd))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "completed %d pending evaluations\n", completed)
			return nil
		},
	})
	return cmd
}

func newAttemptsCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attempts",
		Short: "Usage session maintenance",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var (
		teacherID string
		chatbotID string
		req       dto.ResetAttemptsRequest
	)
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Delete usage sessions for a student, a class or a whole chatbot",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.open(); err != nil {
				return err
			}
			svc := service.NewAttemptService(repository.NewUsageGateRepository(e.db), nil, nil, nil, nil, e.logger)
			res, err := svc.Reset(commandContext(cmd), teacherID, chatbotID, req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	reset.Flags().StringVar(&teacherID, "teacher", "", "Owning teacher user ID")
	reset.Flags().StringVar(&chatbotID, "chatbot", "", "Chatbot ID")
	reset.Flags().StringVar(&req.Scope, "scope", "", "student, class or chatbot")
	reset.Flags().StringVar(&req.StudentID, "student", "", "Student ID for scope=student")
	reset.Flags().StringVar(&req.ClassName, "class", "", "Class name for scope=class")
	_ = reset.MarkFlagRequired("teacher")
	_ = reset.MarkFlagRequired("chatbot")
	_ = reset.MarkFlagRequired("scope")

	cmd.AddCommand(reset)
	return cmd
}

func newUsersCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Account management",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var req service.CreateUserRequest
	var role string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an admin or teacher account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.open(); err != nil {
				return err
			}
			req.Role = models.UserRole(role)
			if req.Password == "" {
				req.Password = os.Getenv("QBOT_USER_PASSWORD")
			}
			if req.Password == "" {
				return errors.New("password required: pass --password or set QBOT_USER_PASSWORD")
			}
			svc := service.NewAuthService(repository.NewUserRepository(e.db), nil, e.logger, service.AuthConfig{
				AccessTokenSecret: e.cfg.JWT.Secret,
				AccessTokenExpiry: e.cfg.JWT.Expiration,
				Issuer:            e.cfg.JWT.Issuer,
			})
			user, err := svc.CreateUser(commandContext(cmd), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), user)
		},
	}
	create.Flags().StringVar(&req.Email, "email", "", "Login email")
	create.Flags().StringVar(&req.FullName, "name", "", "Display name")
	create.Flags().StringVar(&req.Password, "password", "", "Initial password (or QBOT_USER_PASSWORD)")
	create.Flags().StringVar(&role, "role", string(models.RoleTeacher), "ADMIN or TEACHER")
	_ = create.MarkFlagRequired("email")
	_ = create.MarkFlagRequired("name")

	cmd.AddCommand(create)
	return cmd
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
