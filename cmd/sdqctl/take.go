package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"sdq-screen/internal/domain"
	"sdq-screen/internal/repository"
	"sdq-screen/internal/sdq"
	"sdq-screen/internal/service"
)

const cliRespondent = "sdqctl"

func newTakeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "take",
		Short: "Take a questionnaire session in the terminal",
		Long: "Runs one respondent session against in-memory stores. Answer in your own words; " +
			"each suggestion must be confirmed with y, rejected with n, or replaced by naming an option.",
		RunE: runTake,
	}
	cmd.Flags().String("name", "", "Subject name")
	cmd.Flags().Int("age", 0, "Subject age in years")
	cmd.Flags().String("role", string(domain.RoleParent), "Respondent role: child, parent or teacher")
	cmd.Flags().Bool("llm", false, "Interpret answers with the provider configured in LLM_PROVIDER")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("age")
	return cmd
}

func runTake(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	catalog, err := loadCatalog(cmd)
	if err != nil {
		return err
	}
	name, _ := cmd.Flags().GetString("name")
	age, _ := cmd.Flags().GetInt("age")
	roleFlag, _ := cmd.Flags().GetString("role")
	role, err := domain.ParseRole(roleFlag)
	if err != nil {
		return err
	}
	useLLM, _ := cmd.Flags().GetBool("llm")

	logger := newLogger(cmd)
	interpreter, model, err := newInterpreter(ctx, useLLM, logger)
	if err != nil {
		return err
	}

	subjectRepo := repository.NewMemorySubjectRepository()
	sessionRepo := repository.NewMemorySessionRepository()
	aggregator := service.NewAggregator(logger, subjectRepo, sessionRepo, repository.NewMemoryReviewRepository(),
		catalog, service.DefaultRespondentPolicy(), nil)
	subjects, err := service.NewSubjectService(logger, subjectRepo, catalog, "")
	if err != nil {
		return err
	}
	sessions := service.NewSessionService(logger, subjectRepo, sessionRepo, catalog, interpreter, aggregator)

	subject, err := subjects.Register(ctx, service.RegisterSubjectInput{Name: name, Age: age, CreatedBy: cliRespondent})
	if err != nil {
		return err
	}
	view, err := sessions.Start(ctx, service.StartInput{SubjectID: subject.ID, Role: role, RespondentID: cliRespondent})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	in := bufio.NewReader(cmd.InOrStdin())
	bold.Fprintf(out, "SDQ %s report for %s (band %s, interpreter %s)\n", role, subject.Name, view.Session.Band, model)

	t := &terminalSession{sessions: sessions, sessionID: view.Session.ID, in: in, out: out}
	question := view.Question
	for question != nil {
		next, err := t.ask(ctx, *question)
		if err != nil {
			return err
		}
		question = next
	}

	result, err := sessions.Submit(ctx, view.Session.ID, cliRespondent)
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	printScores(out, result.Session.Scores)
	return nil
}

type terminalSession struct {
	sessions  *service.SessionService
	sessionID string
	in        *bufio.Reader
	out       io.Writer
}

// ask repite la pregunta hasta que una respuesta quede confirmada y
// devuelve la siguiente, o nil al completar.
func (t *terminalSession) ask(ctx context.Context, q service.QuestionPrompt) (*service.QuestionPrompt, error) {
	cyan.Fprintf(t.out, "\n[%d/%d] %s\n", q.Number, q.Total, q.Prompt)
	for {
		line, err := t.readLine("> ")
		if err != nil {
			return nil, err
		}
		res, err := t.sessions.Respond(ctx, service.RespondInput{
			SessionID:     t.sessionID,
			RespondentID:  cliRespondent,
			QuestionIndex: q.Index,
			FreeText:      line,
		})
		var unint *domain.UnintelligibleError
		switch {
		case errors.As(err, &unint):
			yellow.Fprintln(t.out, unint.Message)
			continue
		case errors.Is(err, domain.ErrAdapterTimeout):
			red.Fprintln(t.out, "The interpreter did not answer in time. Please answer again.")
			continue
		case err != nil:
			return nil, err
		}

		green.Fprintln(t.out, res.Message)
		confirmed, err := t.confirm(ctx, q.Index)
		if err != nil {
			return nil, err
		}
		if !confirmed.Committed {
			fmt.Fprintln(t.out, "Okay, tell me again in your own words.")
			continue
		}
		return confirmed.Question, nil
	}
}

func (t *terminalSession) confirm(ctx context.Context, index int) (service.ConfirmResult, error) {
	for {
		line, err := t.readLine("[y/n/option] ")
		if err != nil {
			return service.ConfirmResult{}, err
		}
		input := service.ConfirmInput{SessionID: t.sessionID, RespondentID: cliRespondent, QuestionIndex: index}
		switch strings.ToLower(line) {
		case "", "y", "yes":
			input.Accept = true
		case "n", "no":
		default:
			o, err := sdq.ParseOption(line)
			if err != nil {
				yellow.Fprintln(t.out, sdq.OptionsPrompt)
				continue
			}
			input.Override = &o
		}
		return t.sessions.Confirm(ctx, input)
	}
}

func (t *terminalSession) readLine(prompt string) (string, error) {
	fmt.Fprint(t.out, prompt)
	line, err := t.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		if errors.Is(err, io.EOF) {
			return "", errors.New("input closed before the session was completed")
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}
