package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/hr-interview-bot/internal/hr"
	"github.com/spigell/hr-interview-bot/internal/interview"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate a finished session and store its marks",
	Run: func(cmd *cobra.Command, _ []string) {
		evaluate(cmd)
	},
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().Int64P("session-id", "s", 0, "id of the session to evaluate")
	evaluateCmd.Flags().Bool("dry-run", false, "print the marks without storing them")
	evaluateCmd.MarkFlagRequired("session-id")
}

func evaluate(cmd *cobra.Command) {
	ctx := context.Background()

	logger, config := setup()

	sessionID, err := cmd.Flags().GetInt64("session-id")
	if err != nil {
		logger.Fatal("reading session id", zap.Error(err))
	}
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	eng, err := newEngine(ctx, config, logger)
	if err != nil {
		logger.Fatal("building the interview engine", zap.Error(err))
	}
	defer eng.close()

	sess, err := eng.store.Session(ctx, sessionID)
	if err != nil {
		logger.Fatal("loading the session", zap.Error(err))
	}
	if !sess.Finished() {
		logger.Warn("evaluating a session that is still in progress", zap.Int64("session_id", sess.ID))
	}

	vacancy, err := eng.catalog.Vacancy(ctx, sess.VacancyID)
	if err != nil {
		logger.Fatal("loading the vacancy", zap.Error(err))
	}
	logger.Info("evaluating the session",
		zap.Int64("session_id", sess.ID),
		zap.String("vacancy", vacancy.Name),
	)

	s, err := eng.session(ctx, sessionID)
	if err != nil {
		logger.Fatal("loading the session", zap.Error(err))
	}

	if err := evaluateSession(ctx, eng, s, dryRun, logger); err != nil {
		logger.Fatal("evaluating the session", zap.Error(err))
	}
}

// evaluateSession scores the session and stores the marks unless dryRun is set.
func evaluateSession(ctx context.Context, eng *engine, s interview.Session, dryRun bool, logger *zap.Logger) error {
	marks, ok, err := eng.evaluator.Evaluate(ctx, s)
	if err != nil {
		return err
	}
	if !ok {
		logger.Warn("the model returned no marks", zap.Int64("session_id", s.ID))
		return nil
	}

	// do not bother error since marks are a plain map
	pretty, _ := json.MarshalIndent(marks, "", "  ")
	fmt.Printf("marks:\n%s\n", pretty)

	if dryRun {
		logger.Info("dry run, marks are not stored", zap.Int64("session_id", s.ID))
		return nil
	}

	sess, err := eng.store.Session(ctx, s.ID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	resolved := hr.ResolveMarks(marks, s.Requirements)
	if err := eng.store.UpsertMarks(ctx, sess, resolved); err != nil {
		return fmt.Errorf("store marks: %w", err)
	}

	stored, err := eng.store.Marks(ctx, s.ID)
	if err != nil {
		return fmt.Errorf("read stored marks: %w", err)
	}
	for _, m := range stored {
		fmt.Printf("requirement %d: %d\n", m.RequirementID, m.Value)
	}

	logger.Info("marks stored", zap.Int64("session_id", s.ID), zap.Int("marks", len(stored)))
	return nil
}
