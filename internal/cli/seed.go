package cli

import (
	"fmt"
	"os"

	"trivia-service/internal/config"
	"trivia-service/internal/domain"
	"trivia-service/internal/infra/memory"
	"trivia-service/internal/infra/postgres"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// NewSeedCmd loads questions into Postgres.
func NewSeedCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert or update questions in the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log := newLogger(cfg)
			defer func() { _ = log.Sync() }()
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}

			questions := memory.SampleQuestions()
			if file != "" {
				if questions, err = loadQuestionFile(file); err != nil {
					return err
				}
			}
			if err := runMigrationsWithConfig(cmd.Context(), cfg, log); err != nil {
				return err
			}

			db := openBunDB(cfg.Postgres.URL)
			defer db.Close()
			n, err := postgres.SeedQuestions(cmd.Context(), db, questions)
			if err != nil {
				return err
			}
			log.Info("questions seeded", zap.Int("count", n), zap.String("file", file))
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "YAML file with a top-level questions list (built-in bank when empty)")
	return cmd
}

type questionFile struct {
	Questions []domain.Question `yaml:"questions"`
}

func loadQuestionFile(path string) ([]domain.Question, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f questionFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(f.Questions) == 0 {
		return nil, fmt.Errorf("%s contains no questions", path)
	}
	return f.Questions, nil
}
