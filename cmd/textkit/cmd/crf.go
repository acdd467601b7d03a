package cmd

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/textkit/textkit/internal/config"
	"github.com/textkit/textkit/internal/crf"
	"github.com/textkit/textkit/internal/seqanalyze"
)

var crfCmd = &cobra.Command{
	Use:   "crf",
	Short: "Train, test, or tag with a linear-chain CRF (spec 4.6)",
}

var crfTrainCmd = &cobra.Command{
	Use:   "train <config.toml>",
	Short: "Train a CRF model from tagged data and write it to crf.model-dir",
	Args:  cobra.ExactArgs(1),
	RunE:  runCRFTrain,
}

var crfTestCmd = &cobra.Command{
	Use:   "test <config.toml>",
	Short: "Tag crf.test-data with a trained model and report per-token accuracy",
	Args:  cobra.ExactArgs(1),
	RunE:  runCRFTest,
}

var crfTagCmd = &cobra.Command{
	Use:   "tag <config.toml>",
	Short: "Tag sentences from crf.tag-data, or interactively from stdin if unset",
	Args:  cobra.ExactArgs(1),
	RunE:  runCRFTag,
}

func init() {
	rootCmd.AddCommand(crfCmd)
	crfCmd.AddCommand(crfTrainCmd)
	crfCmd.AddCommand(crfTestCmd)
	crfCmd.AddCommand(crfTagCmd)
}

func buildAnalyzer(cfg *config.Config) *seqanalyze.Analyzer {
	return seqanalyze.NewDefaultPOSAnalyzer(cfg.Sequence.Features)
}

func crfParameters(cfg config.CRFConfig) crf.Parameters {
	return crf.Parameters{
		C2:                 cfg.C2,
		MaxIters:           uint64(cfg.MaxIters),
		Period:             uint64(cfg.Period),
		Delta:              cfg.Delta,
		CalibrationSamples: uint64(cfg.CalibrationSamples),
		CalibrationTrials:  uint64(cfg.CalibrationTrials),
		CalibrationEta:     cfg.CalibrationEta,
		CalibrationRate:    cfg.CalibrationRate,
	}
}

func runCRFTrain(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(args[0])
	if err != nil {
		return err
	}
	log := newLogger()

	symbols, tags, err := readTaggedLines(cfg.CRF.TrainData)
	if err != nil {
		return err
	}
	if len(symbols) == 0 {
		return fmt.Errorf("crf.train-data %s contains no tagged sequences", cfg.CRF.TrainData)
	}

	analyzer := buildAnalyzer(cfg)
	examples := make([]seqanalyze.Sequence, len(symbols))
	for i := range symbols {
		seq := seqanalyze.NewTagged(symbols[i], tags[i])
		analyzer.Analyze(seq)
		examples[i] = seq
	}

	model := crf.NewModel()
	trainer := crf.NewTrainer(model, rand.New(rand.NewSource(time.Now().UnixNano())), log)

	loss, err := trainer.Train(crfParameters(cfg.CRF), examples, analyzer.NumFeatures(), analyzer.NumLabels())
	if err != nil {
		return fmt.Errorf("training: %w", err)
	}

	if err := os.MkdirAll(cfg.CRF.ModelDir, 0o755); err != nil {
		return fmt.Errorf("creating model directory: %w", err)
	}
	if err := crf.SaveBundle(cfg.CRF.ModelDir, model, analyzer); err != nil {
		return fmt.Errorf("saving model: %w", err)
	}

	fmt.Printf("trained %d features, %d labels over %d sequences; final loss %.4f\n",
		analyzer.NumFeatures(), analyzer.NumLabels(), len(examples), loss)
	return nil
}

func runCRFTest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(args[0])
	if err != nil {
		return err
	}

	model, analyzer, err := crf.LoadBundle(cfg.CRF.ModelDir)
	if err != nil {
		return fmt.Errorf("loading model: %w", err)
	}

	symbols, gold, err := readTaggedLines(cfg.CRF.TestData)
	if err != nil {
		return err
	}

	tagger := crf.NewTagger(model)
	var correct, total int
	for i := range symbols {
		seq := seqanalyze.NewUntagged(symbols[i])
		analyzer.AnalyzeConst(seq)
		predicted := tagger.Tag(seq)
		for t := range predicted {
			total++
			if predicted[t] == gold[i][t] {
				correct++
			}
		}
	}

	accuracy := 0.0
	if total > 0 {
		accuracy = float64(correct) / float64(total)
	}
	fmt.Printf("per-token accuracy: %.4f (%d/%d)\n", accuracy, correct, total)
	return nil
}

func runCRFTag(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(args[0])
	if err != nil {
		return err
	}

	model, analyzer, err := crf.LoadBundle(cfg.CRF.ModelDir)
	if err != nil {
		return fmt.Errorf("loading model: %w", err)
	}
	tagger := crf.NewTagger(model)

	tagOne := func(tokens []string) {
		seq := seqanalyze.NewUntagged(tokens)
		analyzer.AnalyzeConst(seq)
		tags := tagger.Tag(seq)
		parts := make([]string, len(tokens))
		for i, tok := range tokens {
			parts[i] = tok + "/" + color.GreenString(tags[i])
		}
		fmt.Println(strings.Join(parts, " "))
	}

	if cfg.CRF.TagData != "" {
		sentences, err := readUntaggedLines(cfg.CRF.TagData)
		if err != nil {
			return err
		}
		for _, s := range sentences {
			tagOne(s)
		}
		return nil
	}

	fmt.Println("enter a sentence to tag, or \"quit\" to exit")
	sc := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !sc.Scan() {
			break
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}
		tagOne(strings.Fields(line))
	}
	return sc.Err()
}
