package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/hr-interview-bot/internal/interview"
)

var interviewCmd = &cobra.Command{
	Use:   "interview",
	Short: "Conduct an interview for an existing session in the console",
	Run: func(cmd *cobra.Command, _ []string) {
		runInterview(cmd)
	},
}

func init() {
	rootCmd.AddCommand(interviewCmd)

	interviewCmd.Flags().Int64P("session-id", "s", 0, "id of the session to interview for")
	interviewCmd.MarkFlagRequired("session-id")
}

func runInterview(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger, config := setup()

	sessionID, err := cmd.Flags().GetInt64("session-id")
	if err != nil {
		logger.Fatal("reading session id", zap.Error(err))
	}

	eng, err := newEngine(ctx, config, logger)
	if err != nil {
		logger.Fatal("building the interview engine", zap.Error(err))
	}
	defer eng.close()

	s, err := eng.session(ctx, sessionID)
	if err != nil {
		logger.Fatal("loading the session", zap.Error(err))
	}

	turn, err := eng.controller.Start(ctx, s)
	if err != nil {
		logger.Fatal("starting the interview", zap.Error(err))
	}

	for !turn.Finished {
		fmt.Printf("\nInterviewer: %s\n\n", turn.Question)

		answer, err := (&promptui.Prompt{
			Label: "Answer",
			Validate: func(in string) error {
				if strings.TrimSpace(in) == "" {
					return errors.New("answer is empty")
				}
				return nil
			},
		}).Run()
		if err != nil {
			if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
				logger.Info("exiting", zap.String("reason", "interview interrupted, it can be resumed later"))
				return
			}
			logger.Fatal("reading the answer", zap.Error(err))
		}

		turn, _, err = eng.controller.Advance(ctx, s, answer)
		if errors.Is(err, interview.ErrSessionFinished) {
			break
		}
		if err != nil {
			logger.Fatal("advancing the interview", zap.Error(err))
		}
	}

	if turn.Question != "" {
		fmt.Printf("\nInterviewer: %s\n\n", turn.Question)
	}

	if _, err := eng.store.FinishSession(ctx, s.ID); err != nil {
		logger.Fatal("finishing the session", zap.Error(err))
	}
	logger.Info("interview finished", zap.Int64("session_id", s.ID))

	if err := evaluateSession(ctx, eng, s, false, logger); err != nil {
		logger.Fatal("evaluating the session", zap.Error(err))
	}
}
