package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ashita-ai/pneuma/internal/inference"
	"github.com/ashita-ai/pneuma/internal/model"
	"github.com/ashita-ai/pneuma/internal/persona"
	"github.com/ashita-ai/pneuma/internal/service/analysis"
)

var askFlags struct {
	prompt       string
	calls        int
	concurrency  int
	personasFile string
	jsonOutput   bool
}

var askCmd = &cobra.Command{
	Use:   "ask FILE",
	Short: "Poll sampled personas about FILE and print answers as they arrive",
	Long: `Run a poll locally against the configured inference API. No balance is
charged. Results print in completion order, followed by a tally.

The API key and endpoint come from OPENAI_API_KEY and PNEUMA_OPENAI_BASE_URL.`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	f := askCmd.Flags()
	f.StringVarP(&askFlags.prompt, "prompt", "p", "", "Yes/no question to ask (required)")
	f.IntVarP(&askFlags.calls, "calls", "n", 10, "Number of personas to poll")
	f.IntVar(&askFlags.concurrency, "concurrency", -1, "Max in-flight calls (-1 = $PNEUMA_MAX_CONCURRENCY, 0 = unbounded)")
	f.StringVar(&askFlags.personasFile, "personas", "", "Population YAML (default: $PNEUMA_PERSONAS_FILE, then the built-in set)")
	f.BoolVar(&askFlags.jsonOutput, "json", false, "Print each result as a JSON line")

	_ = askCmd.MarkFlagRequired("prompt")
}

type tally struct {
	yes, no, failed int
}

func (t *tally) add(r model.CallResult) {
	switch {
	case r.Status != model.StatusSuccess:
		t.failed++
	case r.Answer == model.AnswerYes:
		t.yes++
	default:
		t.no++
	}
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	artifact, err := readArtifact(args[0], cfg.MaxUploadBytes)
	if err != nil {
		return err
	}
	file := askFlags.personasFile
	if file == "" {
		file = cfg.PersonasFile
	}
	pop, err := loadPopulation(file)
	if err != nil {
		return err
	}
	concurrency := cfg.MaxConcurrency
	if askFlags.concurrency >= 0 {
		concurrency = askFlags.concurrency
	}

	logger := cliLogger(cmd.ErrOrStderr())
	if cfg.OpenAIAPIKey == "" {
		logger.Warn("OPENAI_API_KEY not set")
	}
	client := inference.NewOpenAIClient(inference.OpenAIConfig{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
	})
	execCfg := analysis.DefaultExecutorConfig()
	execCfg.GenerationModel = cfg.GenerationModel
	execCfg.ClassifierModel = cfg.ClassifierModel
	execCfg.CallTimeout = cfg.CallTimeout
	svc := analysis.New(analysis.NewExecutor(client, execCfg, logger), persona.NewSampler(nil), pop, costModel(cfg),
		analysis.Config{MaxCalls: cfg.MaxCalls, MaxConcurrency: concurrency}, logger)

	out := cmd.OutOrStdout()
	var t tally
	err = svc.Run(cmd.Context(), askFlags.prompt, artifact, askFlags.calls, func(ev model.Event) error {
		if askFlags.jsonOutput {
			return printEventJSON(out, ev)
		}
		switch ev.Type {
		case model.EventStart:
			start, _ := ev.Data.(model.StartPayload)
			fmt.Fprintf(out, "Polling %d personas...\n", start.Total)
		case model.EventResult:
			r, _ := ev.Data.(model.CallResult)
			t.add(r)
			printResult(out, r)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !askFlags.jsonOutput {
		fmt.Fprintf(out, "\nyes: %d  no: %d  error: %d\n", t.yes, t.no, t.failed)
	}
	return nil
}

func printResult(w io.Writer, r model.CallResult) {
	answer := strings.ToUpper(string(r.Answer))
	if r.Status != model.StatusSuccess {
		fmt.Fprintf(w, "[%3d] %-5s %s: %s\n", r.Index, answer, persona.Persona(r.Persona).Headline(), r.Explanation)
		return
	}
	fmt.Fprintf(w, "[%3d] %-5s %s\n", r.Index, answer, persona.Persona(r.Persona).Headline())
}

func printEventJSON(w io.Writer, ev model.Event) error {
	line, err := json.Marshal(struct {
		Type model.EventType `json:"type"`
		Data any             `json:"data"`
	}{ev.Type, ev.Data})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(line))
	return err
}
