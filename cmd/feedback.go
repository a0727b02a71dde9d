package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/candidate-ranker/internal/feedback"
	"github.com/spigell/candidate-ranker/internal/report"
	"github.com/spigell/candidate-ranker/internal/requirements"
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Record or inspect recruiter feedback on candidates",
}

var feedbackAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Append a feedback record",
	Run: func(cmd *cobra.Command, _ []string) {
		feedbackAdd(cmd)
	},
}

var feedbackListCmd = &cobra.Command{
	Use:   "list",
	Short: "List feedback records",
	Run: func(cmd *cobra.Command, _ []string) {
		feedbackList(cmd)
	},
}

func init() {
	rootCmd.AddCommand(feedbackCmd)
	feedbackCmd.AddCommand(feedbackAddCmd, feedbackListCmd)

	feedbackAddCmd.Flags().String("candidate-id", "", "candidate identifier as returned by retrieval")
	feedbackAddCmd.Flags().String("name", "", "candidate display name, used when the id is unknown")
	feedbackAddCmd.Flags().String("type", "", "positive or negative")
	feedbackAddCmd.Flags().String("reason", "", "free-text reason")
	feedbackAddCmd.Flags().String("jd-file", "", "requisition the feedback applies to (global when unset)")
	feedbackAddCmd.MarkFlagsOneRequired("candidate-id", "name")
	feedbackAddCmd.MarkFlagRequired("type")

	feedbackListCmd.Flags().String("jd-file", "", "only list feedback for this requisition")
}

func feedbackAdd(cmd *cobra.Command) {
	ctx := context.Background()
	log, config := setup()

	id, _ := cmd.Flags().GetString("candidate-id")
	name, _ := cmd.Flags().GetString("name")
	typeFlag, _ := cmd.Flags().GetString("type")
	reason, _ := cmd.Flags().GetString("reason")
	jdFile, _ := cmd.Flags().GetString("jd-file")

	typ, err := feedback.ParseType(typeFlag)
	if err != nil {
		log.Fatal("parsing feedback type", zap.Error(err))
	}

	contextID, err := contextFromFile(jdFile)
	if err != nil {
		log.Fatal("reading job description", zap.Error(err))
	}

	store, err := newFeedbackStore(config.Feedback, log)
	if err != nil {
		log.Fatal("opening feedback store", zap.Error(err))
	}
	defer store.Close()

	record := feedback.NewRecord(id, name, contextID, typ, reason)
	if err := record.Validate(); err != nil {
		log.Fatal("invalid feedback", zap.Error(err))
	}
	if err := store.Append(ctx, record); err != nil {
		log.Fatal("saving feedback", zap.Error(err))
	}

	log.Info("feedback recorded",
		zap.String("record_id", record.ID),
		zap.String("candidate", record.Identity()),
		zap.String("type", string(record.Type)),
		zap.String("context_id", record.ContextID),
	)
}

func feedbackList(cmd *cobra.Command) {
	ctx := context.Background()
	log, config := setup()

	jdFile, _ := cmd.Flags().GetString("jd-file")

	filter := feedback.Filter{}
	if jdFile != "" {
		contextID, err := contextFromFile(jdFile)
		if err != nil {
			log.Fatal("reading job description", zap.Error(err))
		}
		filter.ContextID = contextID
	}

	store, err := newFeedbackStore(config.Feedback, log)
	if err != nil {
		log.Fatal("opening feedback store", zap.Error(err))
	}
	defer store.Close()

	records, err := store.List(ctx, filter)
	if err != nil {
		log.Fatal("reading feedback", zap.Error(err))
	}

	if err := report.Feedback(os.Stdout, records); err != nil {
		log.Fatal("rendering feedback", zap.Error(err))
	}
}

// contextFromFile hashes a requisition file into its context ID. No file means global feedback.
func contextFromFile(path string) (string, error) {
	if path == "" {
		return requirements.GlobalContext, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return requirements.ContextID(strings.TrimSpace(string(data))), nil
}
