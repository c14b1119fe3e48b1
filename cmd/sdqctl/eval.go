package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"sdq-screen/internal/domain"
	"sdq-screen/internal/sdq"
	"sdq-screen/internal/service"
)

//go:embed evalcases.yaml
var defaultEvalCases []byte

// expectUnintelligible marca un caso en el que el interprete debe re-preguntar.
const expectUnintelligible = "unintelligible"

type evalCase struct {
	Question int    `yaml:"question"`
	Age      int    `yaml:"age"`
	Role     string `yaml:"role"`
	Text     string `yaml:"text"`
	Expect   string `yaml:"expect"`
}

type evalResult struct {
	Case       evalCase
	Got        string
	Confidence float64
	Passed     bool
	Err        error
}

type evalReport struct {
	Results []evalResult
	Passed  int
}

func (r evalReport) Accuracy() float64 {
	if len(r.Results) == 0 {
		return 0
	}
	return float64(r.Passed) / float64(len(r.Results))
}

func newEvalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate the answer interpreter against labelled examples",
		RunE:  runEval,
	}
	cmd.Flags().String("cases", "", "YAML file with labelled cases (defaults to the built-in set)")
	cmd.Flags().Bool("llm", false, "Evaluate the provider configured in LLM_PROVIDER instead of the keyword rules")
	cmd.Flags().Float64("min-accuracy", 0, "Fail when accuracy is below this ratio")
	cmd.Flags().Duration("timeout", 20*time.Second, "Per-case interpreter timeout")
	return cmd
}

func runEval(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	catalog, err := loadCatalog(cmd)
	if err != nil {
		return err
	}
	raw := defaultEvalCases
	if path, _ := cmd.Flags().GetString("cases"); path != "" {
		raw, err = os.ReadFile(path)
		if err != nil {
			return err
		}
	}
	cases, err := parseEvalCases(raw)
	if err != nil {
		return err
	}
	useLLM, _ := cmd.Flags().GetBool("llm")
	interpreter, model, err := newInterpreter(ctx, useLLM, newLogger(cmd))
	if err != nil {
		return err
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")

	out := cmd.OutOrStdout()
	bold.Fprintf(out, "Evaluating %d cases with %s\n\n", len(cases), model)
	report := evaluate(ctx, catalog, interpreter, cases, timeout)
	printReport(out, report)

	minAccuracy, _ := cmd.Flags().GetFloat64("min-accuracy")
	if report.Accuracy() < minAccuracy {
		return fmt.Errorf("accuracy %.2f below %.2f", report.Accuracy(), minAccuracy)
	}
	return nil
}

func parseEvalCases(raw []byte) ([]evalCase, error) {
	var cases []evalCase
	if err := yaml.Unmarshal(raw, &cases); err != nil {
		return nil, fmt.Errorf("parse cases: %w", err)
	}
	for i, c := range cases {
		if c.Question < 0 || c.Question >= sdq.Size {
			return nil, fmt.Errorf("case %d: %w: %d", i+1, sdq.ErrIndexOutOfRange, c.Question)
		}
		if _, err := domain.ParseRole(c.Role); err != nil {
			return nil, fmt.Errorf("case %d: %w", i+1, err)
		}
		if c.Expect != expectUnintelligible {
			if _, err := sdq.ParseOption(c.Expect); err != nil {
				return nil, fmt.Errorf("case %d: %w", i+1, err)
			}
		}
	}
	return cases, nil
}

// evaluate corre cada caso como lo haria una sesion: misma redaccion de la
// pregunta para la banda y el rol del caso.
func evaluate(ctx context.Context, catalog *sdq.Catalog, interpreter service.Interpreter, cases []evalCase, timeout time.Duration) evalReport {
	var report evalReport
	for _, c := range cases {
		res := evalResult{Case: c}
		role, _ := domain.ParseRole(c.Role)
		q, err := questionFor(catalog, c)
		if err != nil {
			res.Err = err
			report.Results = append(report.Results, res)
			continue
		}
		cctx, cancel := context.WithTimeout(ctx, timeout)
		in, err := interpreter.Interpret(cctx, service.InterpretRequest{
			Question: q,
			Prompt:   sdq.Phrase(q.Text, "the child", role.SelfReport()),
			Age:      c.Age,
			Role:     role,
			FreeText: c.Text,
		})
		cancel()

		var unint *domain.UnintelligibleError
		switch {
		case errors.As(err, &unint):
			res.Got = expectUnintelligible
		case err != nil:
			res.Err = err
		default:
			res.Got = in.Option.String()
			res.Confidence = in.Confidence
		}
		if res.Err == nil {
			res.Passed = sameAnswer(res.Got, c.Expect)
		}
		if res.Passed {
			report.Passed++
		}
		report.Results = append(report.Results, res)
	}
	return report
}

func questionFor(catalog *sdq.Catalog, c evalCase) (sdq.Question, error) {
	band, err := catalog.BandForAge(c.Age)
	if err != nil {
		return sdq.Question{}, err
	}
	return catalog.Question(band, c.Question)
}

func sameAnswer(got, expect string) bool {
	if got == expectUnintelligible || expect == expectUnintelligible {
		return got == expect
	}
	g, err1 := sdq.ParseOption(got)
	e, err2 := sdq.ParseOption(expect)
	return err1 == nil && err2 == nil && g == e
}

func printReport(out io.Writer, report evalReport) {
	for _, r := range report.Results {
		fmt.Fprintf(out, "%s %q\n", cyan.Sprint("[Answer]"), r.Case.Text)
		switch {
		case r.Err != nil:
			red.Fprintf(out, "  error: %v\n", r.Err)
		case r.Passed:
			green.Fprintf(out, "  ok    %s", r.Got)
			fmt.Fprintf(out, " (confidence %.2f)\n", r.Confidence)
		default:
			red.Fprintf(out, "  miss  got %s, want %s\n", r.Got, r.Case.Expect)
		}
	}
	fmt.Fprintln(out, strings.Repeat("=", 20))
	bold.Fprintf(out, "Accuracy: %d/%d (%.2f)\n", report.Passed, len(report.Results), report.Accuracy())
}
