package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zombar/promptscore/internal/analyzer"
	"github.com/zombar/promptscore/internal/cache"
	"github.com/zombar/promptscore/internal/config"
	"github.com/zombar/promptscore/internal/models"
	"github.com/zombar/promptscore/internal/optimizer"
)

// defaultTargetModel is used when --target-model is not given
const defaultTargetModel = "general"

type rootOptions struct {
	configPath string
	logLevel   string
	mediaType  string
}

func rootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Score and optimize generative AI prompts",
		Long: `promptscore analyzes prompts for text, image, video and audio models,
scores optimized rewrites against their originals and checks that a
rewrite did not invent details the user never asked for.

Results are printed as JSON.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML config file (LLM provider settings)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVarP(&opts.mediaType, "media-type", "m", string(models.MediaImage), "Media type: text, image, video or audio")

	cmd.AddCommand(
		analyzeCmd(opts),
		intentCmd(opts),
		scoreCmd(opts),
		optimizeCmd(opts),
		keyCmd(opts),
		versionCmd(),
	)
	return cmd
}

func (o *rootOptions) logger(w io.Writer) *slog.Logger {
	level, err := config.ParseLevel(o.logLevel)
	if err != nil {
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func (o *rootOptions) parseMediaType() (models.MediaType, error) {
	mt, err := models.ParseMediaType(o.mediaType)
	if err != nil {
		return "", analyzer.InvalidArgument("%v", err)
	}
	return mt, nil
}

func analyzeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <prompt>",
		Short: "Analyze a single prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mt, err := opts.parseMediaType()
			if err != nil {
				return err
			}
			result, err := analyzer.New().Analyze(args[0], mt)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
}

// comparison holds the flags shared by intent and score
type comparison struct {
	original  string
	optimized string
	answers   []string
	details   string
}

func (c *comparison) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&c.original, "original", "", "Original prompt")
	cmd.Flags().StringVar(&c.optimized, "optimized", "", "Optimized prompt")
	cmd.Flags().StringArrayVar(&c.answers, "answer", nil, "Answer to a clarifying question as id=value (repeatable)")
	cmd.Flags().StringVar(&c.details, "details", "", "Additional details supplied by the user")
	_ = cmd.MarkFlagRequired("original")
	_ = cmd.MarkFlagRequired("optimized")
}

func intentCmd(_ *rootOptions) *cobra.Command {
	var c comparison
	cmd := &cobra.Command{
		Use:   "intent",
		Short: "Check an optimized prompt for details the user never requested",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			answers, err := parseAnswers(c.answers)
			if err != nil {
				return err
			}
			result := analyzer.New().ValidateIntent(c.original, c.optimized, answers, c.details)
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
	c.bind(cmd)
	return cmd
}

func scoreCmd(opts *rootOptions) *cobra.Command {
	var c comparison
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score an optimized prompt against its original",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mt, err := opts.parseMediaType()
			if err != nil {
				return err
			}
			answers, err := parseAnswers(c.answers)
			if err != nil {
				return err
			}
			result, err := analyzer.New().Score(c.original, c.optimized, mt, answers, c.details)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
	c.bind(cmd)
	return cmd
}

func optimizeCmd(opts *rootOptions) *cobra.Command {
	var (
		mode        string
		targetModel string
		answers     []string
		details     string
	)

	cmd := &cobra.Command{
		Use:   "optimize <prompt>",
		Short: "Optimize a prompt (quick, questions or build)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mt, err := opts.parseMediaType()
			if err != nil {
				return err
			}
			parsed, err := parseAnswers(answers)
			if err != nil {
				return err
			}

			svc, err := opts.newOptimizer(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			req := optimizer.Request{Prompt: args[0], TargetModel: targetModel, MediaType: mt}
			ctx := cmd.Context()

			var result any
			switch mode {
			case optimizer.ModeQuick:
				result, err = svc.QuickOptimize(ctx, req)
			case "questions":
				result, err = svc.AnalyzeForQuestions(ctx, req)
			case optimizer.ModeBuild:
				result, err = svc.Build(ctx, optimizer.BuildRequest{
					Request:           req,
					Answers:           parsed,
					AdditionalDetails: details,
				})
			default:
				return analyzer.InvalidArgument("unknown mode %q, expected quick, questions or build", mode)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVar(&mode, "mode", optimizer.ModeQuick, "Optimization mode: quick, questions or build")
	cmd.Flags().StringVar(&targetModel, "target-model", defaultTargetModel, "Model the prompt is written for")
	cmd.Flags().StringArrayVar(&answers, "answer", nil, "Answer to a clarifying question as id=value (repeatable, build mode)")
	cmd.Flags().StringVar(&details, "details", "", "Additional details (build mode)")
	return cmd
}

// newOptimizer builds a Service using the LLM settings from the config file
// and environment. Without either it runs on rules alone.
func (o *rootOptions) newOptimizer(logOut io.Writer) (*optimizer.Service, error) {
	logger := o.logger(logOut)

	cfg := config.Default()
	if o.configPath != "" || os.Getenv("LLM_PROVIDER") != "" || os.Getenv("USE_OLLAMA") != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	llm, err := optimizer.NewRewriter(cfg.LLM, logger)
	if err != nil {
		return nil, err
	}
	return optimizer.New(analyzer.New(), optimizer.Config{LLM: llm, Logger: logger}), nil
}

func keyCmd(opts *rootOptions) *cobra.Command {
	var targetModel string

	cmd := &cobra.Command{
		Use:   "key <prompt>",
		Short: "Print the cache keys a prompt maps to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mt, err := opts.parseMediaType()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]string{
				"analysis_key":  cache.AnalysisKey(args[0], string(mt), targetModel),
				"questions_key": cache.QuestionsKey(args[0], string(mt), targetModel),
			})
		},
	}
	cmd.Flags().StringVar(&targetModel, "target-model", defaultTargetModel, "Model the prompt is written for")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
		},
	}
}

// parseAnswers turns id=value pairs into answers. A value of
// "no_preference" or "default" is recorded as a default answer.
func parseAnswers(pairs []string) (models.UserAnswers, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	answers := make(models.UserAnswers, len(pairs))
	for _, pair := range pairs {
		id, value, ok := strings.Cut(pair, "=")
		id, value = strings.TrimSpace(id), strings.TrimSpace(value)
		if !ok || id == "" {
			return nil, analyzer.InvalidArgument("invalid answer %q, expected id=value", pair)
		}

		answerType := models.AnswerOption
		if value == models.NoPreference || value == models.DefaultValue {
			answerType = models.AnswerDefault
		}
		answers[id] = models.QuestionAnswer{Type: answerType, Value: value}
	}
	return answers, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
