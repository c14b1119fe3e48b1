package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"sdq-screen/internal/sdq"
)

// answersFile acepta YAML o JSON: una lista de sdq.Size respuestas en orden
// de pregunta, con etiquetas ("Somewhat True") o valores (0, 1, 2).
type answersFile struct {
	Answers []string `yaml:"answers"`
}

func newScoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score FILE",
		Short: "Score an answers file",
		Long:  "Score a YAML or JSON file with 25 answers. Use - to read from stdin.",
		Args:  cobra.ExactArgs(1),
		RunE:  runScore,
	}
	cmd.Flags().Bool("json", false, "Print JSON instead of text")
	return cmd
}

func runScore(cmd *cobra.Command, args []string) error {
	var r io.Reader = cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	answers, err := readAnswers(r)
	if err != nil {
		return err
	}
	scores, err := sdq.Score(answers)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"scores":             scores,
			"total_difficulties": sdq.TotalDifficulties(scores),
		})
	}
	printScores(out, scores)
	return nil
}

func readAnswers(r io.Reader) (map[int]sdq.Option, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var file answersFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse answers: %w", err)
	}
	if len(file.Answers) != sdq.Size {
		return nil, fmt.Errorf("%w: got %d answers, want %d", sdq.ErrIncompleteAnswers, len(file.Answers), sdq.Size)
	}
	answers := make(map[int]sdq.Option, sdq.Size)
	for i, a := range file.Answers {
		o, err := sdq.ParseOption(a)
		if err != nil {
			return nil, fmt.Errorf("answer %d: %w", i+1, err)
		}
		answers[i] = o
	}
	return answers, nil
}

func printScores(out io.Writer, scores []sdq.SubscaleScore) {
	bold.Fprintln(out, "Subscale scores")
	for _, s := range scores {
		fmt.Fprintf(out, "  %-14s %2d/%-2d ", s.Subscale, s.Raw, s.Max)
		severityColor(s.Severity).Fprintln(out, s.Severity)
	}
	fmt.Fprintf(out, "  %-14s %2d/40\n", "total", sdq.TotalDifficulties(scores))
}
