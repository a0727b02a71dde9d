package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/candidate-ranker/internal/candidate"
	"github.com/spigell/candidate-ranker/internal/feedback"
	"github.com/spigell/candidate-ranker/internal/filtering"
	"github.com/spigell/candidate-ranker/internal/lexicon"
	"github.com/spigell/candidate-ranker/internal/pipeline"
	"github.com/spigell/candidate-ranker/internal/ranking"
	"github.com/spigell/candidate-ranker/internal/report"
	"github.com/spigell/candidate-ranker/internal/requirements"
	"github.com/spigell/candidate-ranker/internal/retrieval"
	"github.com/spigell/candidate-ranker/internal/strategy"
)

const (
	PromptExplanations = "Show explanations"
	PromptFeedback     = "Give feedback"
	PromptTraceToFile  = "Dump trace to file"
	PromptDone         = "Done"
	PromptBack         = "back"
)

var errExit = errors.New("exit requested")

var prompt = promptui.Select{
	Label: "What next?",
	Items: []string{PromptExplanations, PromptFeedback, PromptTraceToFile, PromptDone},
}

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Rank indexed candidates against a job requisition",
	Run: func(cmd *cobra.Command, _ []string) {
		rank(cmd)
	},
}

func init() {
	rootCmd.AddCommand(rankCmd)

	rankCmd.Flags().String("jd-file", "", "free-text job requisition")
	rankCmd.Flags().String("requirements", "", "requirement set as JSON, used instead of extraction")
	rankCmd.Flags().BoolP("auto-approve", "y", false, "print the shortlist and exit without prompting")
	rankCmd.Flags().String("trace-file", "", "write the run trace to this file")
	rankCmd.MarkFlagsMutuallyExclusive("jd-file", "requirements")
	rankCmd.MarkFlagsOneRequired("jd-file", "requirements")
}

// session is everything the interactive loop needs after a run.
type session struct {
	store     feedback.Store
	contextID string
	result    *pipeline.Result
	traceFile string
	logger    *zap.Logger
}

func rank(cmd *cobra.Command) {
	ctx := context.Background()
	log, config := setup()

	log.Info("starting the candidate-ranker", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	log.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	jdFile, _ := cmd.Flags().GetString("jd-file")
	reqFile, _ := cmd.Flags().GetString("requirements")
	traceFile, _ := cmd.Flags().GetString("trace-file")
	autoApprove, _ := cmd.Flags().GetBool("auto-approve")

	lex, err := lexicon.Load(config.Ranking.LexiconFile)
	if err != nil {
		log.Fatal("loading lexicon", zap.Error(err))
	}

	prov, err := newProviders(ctx, config, log)
	if err != nil {
		log.Fatal("building ai providers", zap.Error(err))
	}

	loaded, err := loadRequirements(ctx, prov, jdFile, reqFile, log)
	if err != nil {
		log.Fatal("loading requirements", zap.Error(err))
	}
	set, contextID := loaded.set, loaded.contextID

	vector, err := prov.query.Embed(ctx, loaded.queryText)
	if err != nil {
		log.Fatal("embedding the requisition", zap.Error(err))
	}

	store, err := newFeedbackStore(config.Feedback, log)
	if err != nil {
		log.Fatal("opening feedback store", zap.Error(err))
	}
	defer store.Close()

	records, err := store.List(ctx, feedback.Filter{})
	if err != nil {
		log.Fatal("reading feedback", zap.Error(err))
	}
	snapshot := feedback.BuildSnapshot(records, contextID, snapshotOptions(config.Feedback, log))

	var precision, recall *strategy.Config
	if config.Strategy != nil {
		precision, recall = config.Strategy.Precision, config.Strategy.Recall
	}

	rc := ranking.Build(uuid.NewString(), contextID, *set, lex, strategy.NewSelector(precision, recall), snapshot)

	index, err := newIndex(config.Retrieval, log)
	if err != nil {
		log.Fatal("opening the index", zap.Error(err))
	}
	defer index.Close()

	p, err := newPipeline(index, config, log)
	if err != nil {
		log.Fatal("building the pipeline", zap.Error(err))
	}
	defer p.Release()

	result, err := p.Run(ctx, pipeline.Request{Context: rc, Vector: vector, Issues: loaded.issues})
	if err != nil {
		log.Fatal("ranking failed", zap.Error(err))
	}

	if err := report.Summary(os.Stdout, result.Trace); err != nil {
		log.Fatal("rendering summary", zap.Error(err))
	}
	if err := report.Candidates(os.Stdout, result.Candidates, feedback.SuccessfulFor(records, contextID)); err != nil {
		log.Fatal("rendering candidates", zap.Error(err))
	}

	if traceFile != "" {
		if err := result.Trace.Save(traceFile); err != nil {
			log.Fatal("saving trace", zap.Error(err))
		}
		log.Info("trace saved", zap.String("filename", traceFile))
	}

	if autoApprove || len(result.Candidates) == 0 {
		return
	}

	s := &session{store: store, contextID: contextID, result: result, traceFile: traceFile, logger: log}
	for {
		_, action, err := prompt.Run()
		if err != nil {
			log.Fatal("exiting", zap.Error(err))
		}

		if err := s.handleAction(ctx, action); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			log.Fatal("exiting", zap.Error(err))
		}
	}
}

type loadedRequirements struct {
	set       *requirements.Set
	contextID string
	queryText string

	// issues are non-fatal failures to carry into the trace.
	issues []*pipeline.StageError
}

// loadRequirements returns the requirement set, its context ID and the text to embed.
// A failed extraction degrades to an empty set searched with the raw job description.
func loadRequirements(ctx context.Context, prov *providers, jdFile, reqFile string, log *zap.Logger) (*loadedRequirements, error) {
	if reqFile != "" {
		data, err := os.ReadFile(reqFile)
		if err != nil {
			return nil, fmt.Errorf("reading requirements: %w", err)
		}
		set, err := requirements.ParseJSON(data)
		if err != nil {
			return nil, err
		}
		text := set.Normalize().QueryText()
		if text == "" {
			return nil, errors.New("requirement set has no signals to search with")
		}
		return &loadedRequirements{set: set, contextID: requirements.ContextID(text), queryText: text}, nil
	}

	data, err := os.ReadFile(jdFile)
	if err != nil {
		return nil, fmt.Errorf("reading job description: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, fmt.Errorf("job description %s is empty", jdFile)
	}

	loaded := &loadedRequirements{contextID: requirements.ContextID(text), queryText: text}

	set, err := prov.extractor.Extract(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn("requirement extraction failed, ranking on the raw job description", zap.Error(err))
		loaded.set = &requirements.Set{}
		loaded.issues = append(loaded.issues, &pipeline.StageError{
			Stage: pipeline.StageExtract,
			Err:   fmt.Errorf("extracting requirements: %w", err),
		})
		return loaded, nil
	}
	loaded.set = set
	return loaded, nil
}

func newPipeline(index retrieval.Retriever, config *Config, log *zap.Logger) (*pipeline.Pipeline, error) {
	mode, err := pipeline.ParseMode(config.Ranking.Mode)
	if err != nil {
		return nil, err
	}

	soft := filtering.DefaultSoftConfig()
	soft.Workers = config.Ranking.ScoreWorkers

	return pipeline.New(index,
		pipeline.WithLogger(log),
		pipeline.WithMode(mode),
		pipeline.WithMinKeep(config.Ranking.MinKeep),
		pipeline.WithExplainThreshold(config.Ranking.ExplainThreshold),
		pipeline.WithScoreWorkers(config.Ranking.ScoreWorkers),
		pipeline.WithExplainWorkers(config.Ranking.ExplainWorkers),
		pipeline.WithPointsPerWeight(config.Feedback.PointsPerWeight),
		pipeline.WithRetrieval(config.Retrieval.Timeout, config.Retrieval.Namespace, config.Retrieval.Dimension),
		pipeline.WithMetadataFilter(config.Retrieval.Filter),
		pipeline.WithFilters(
			filtering.NewDisqualify(),
			filtering.NewExcludeFile(config.Ranking.ExcludeFile),
			filtering.NewRejected(config.Feedback.ExcludeRejected),
			filtering.NewSoft(soft),
		),
	)
}

func (s *session) handleAction(ctx context.Context, action string) error {
	switch action {
	case PromptExplanations:
		report.Explanations(os.Stdout, s.result.Candidates)
		return nil
	case PromptFeedback:
		return s.giveFeedback(ctx)
	case PromptTraceToFile:
		filename, err := s.dumpTrace()
		if err != nil {
			return fmt.Errorf("dump trace to file: %w", err)
		}
		s.logger.Info("dumping trace to file", zap.String("filename", filename))
		return nil
	case PromptDone:
		s.logger.Info("exiting", zap.String("reason", "done"))
		return errExit
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}

func (s *session) dumpTrace() (string, error) {
	filename := s.traceFile
	if filename == "" {
		f, err := os.CreateTemp("", app+"-trace-*.json")
		if err != nil {
			return "", err
		}
		filename = f.Name()
		if err := f.Close(); err != nil {
			return "", err
		}
	}
	return filename, s.result.Trace.Save(filename)
}

func (s *session) giveFeedback(ctx context.Context) error {
	for {
		items := make([]string, 0, len(s.result.Candidates)+1)
		for i, c := range s.result.Candidates {
			items = append(items, candidateLabel(i, c))
		}

		candidatePrompt := promptui.Select{
			Label: "Choose a candidate and press ENTER",
			Items: append(items, PromptBack),
			Size:  10,
		}

		idx, selected, err := candidatePrompt.Run()
		if err != nil {
			return err
		}
		if selected == PromptBack {
			return nil
		}
		c := s.result.Candidates[idx]

		typePrompt := promptui.Select{
			Label: fmt.Sprintf("Feedback for %s", c.ID),
			Items: []string{string(feedback.Positive), string(feedback.Negative), PromptBack},
		}
		_, typ, err := typePrompt.Run()
		if err != nil {
			return err
		}
		if typ == PromptBack {
			continue
		}

		reasonPrompt := promptui.Prompt{Label: "Reason (optional)"}
		reason, err := reasonPrompt.Run()
		if err != nil {
			return err
		}

		record := feedback.NewRecord(c.ID, c.Profile.Name, s.contextID, feedback.Type(typ), reason)
		if err := s.store.Append(ctx, record); err != nil {
			return err
		}

		s.logger.Info("feedback recorded",
			zap.String("candidate_id", c.ID),
			zap.String("type", typ),
		)
	}
}

func candidateLabel(i int, c candidate.Scored) string {
	label := fmt.Sprintf("%d. %s %.1f", i+1, c.ID, c.FinalScore)
	if c.Profile.Name != "" {
		label += " / " + c.Profile.Name
	}
	return label
}
