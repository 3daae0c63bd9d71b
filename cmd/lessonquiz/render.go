package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/at-ishikawa/lessonquiz/internal/hearts"
	"github.com/at-ishikawa/lessonquiz/internal/quiz"
)

const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

type printer struct {
	w      io.Writer
	format string
	bold   *color.Color
	green  *color.Color
	red    *color.Color
	yellow *color.Color
}

func newPrinter(w io.Writer, format string) (*printer, error) {
	switch format {
	case outputText, outputJSON, outputYAML:
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
	return &printer{
		w:      w,
		format: format,
		bold:   color.New(color.Bold),
		green:  color.New(color.FgGreen),
		red:    color.New(color.FgRed),
		yellow: color.New(color.FgYellow),
	}, nil
}

// structured writes v as JSON or YAML. It reports false for the text format.
func (p *printer) structured(v any) (bool, error) {
	switch p.format {
	case outputJSON:
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case outputYAML:
		// Round trip through JSON so keys follow the wire names.
		b, err := json.Marshal(v)
		if err != nil {
			return true, fmt.Errorf("json.Marshal > %w", err)
		}
		var doc any
		if err := json.Unmarshal(b, &doc); err != nil {
			return true, fmt.Errorf("json.Unmarshal > %w", err)
		}
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return true, fmt.Errorf("yaml.Encode > %w", err)
		}
		return true, enc.Close()
	}
	return false, nil
}

func (p *printer) state(s quiz.State) error {
	if ok, err := p.structured(s); ok {
		return err
	}

	_, _ = p.bold.Fprintf(p.w, "Lesson %s", s.LessonID)
	fmt.Fprintf(p.w, " [%s]\n", s.Kind)
	switch s.Kind {
	case quiz.KindLocked:
		fmt.Fprintf(p.w, "Complete every section first (%d/%d done)\n",
			s.Progress.SectionsCompleted, s.Progress.SectionsTotal)
	case quiz.KindBlockedHearts, quiz.KindPaused:
		_, _ = p.yellow.Fprintf(p.w, "Out of hearts. %s\n", refillText(s.Hearts))
	case quiz.KindPassed:
		_, _ = p.green.Fprintf(p.w, "Passed with %d/%d points\n", s.EarnedScore, s.MaxScore)
	case quiz.KindFailed:
		_, _ = p.red.Fprintf(p.w, "Failed with %d/%d points, %d to retry\n",
			s.EarnedScore, s.MaxScore, len(s.WrongQuestionIDs))
	}

	if s.Question != nil {
		fmt.Fprintf(p.w, "Question %d/%d  %s (%s, %d pt)\n",
			s.QuestionIndex+1, s.QuestionCount, s.Question.ID, s.Question.Type, s.Question.Points)
		fmt.Fprintf(p.w, "  %s\n", s.Question.Prompt)
		if s.Question.Payload != nil {
			payload, err := json.Marshal(s.Question.Payload)
			if err != nil {
				return fmt.Errorf("json.Marshal > %w", err)
			}
			fmt.Fprintf(p.w, "  options: %s\n", payload)
		}
	}
	if s.AttemptID != "" {
		fmt.Fprintf(p.w, "Attempt %s  score %d/%d\n", s.AttemptID, s.EarnedScore, s.MaxScore)
	}
	fmt.Fprintf(p.w, "Hearts %s\n", heartsText(s.Hearts))
	if s.Reward != nil && s.Reward.Granted {
		_, _ = p.green.Fprintf(p.w, "Reward: %d XP total, streak %d", s.Reward.XP, s.Reward.Streak)
		if s.Reward.BadgeAwarded {
			_, _ = p.green.Fprint(p.w, ", new badge")
		}
		fmt.Fprintln(p.w)
	}
	return nil
}

func (p *printer) outcome(o quiz.AnswerOutcome) error {
	if ok, err := p.structured(o); ok {
		return err
	}

	switch {
	case o.BlockedByHearts:
		_, _ = p.yellow.Fprintln(p.w, "Not graded: no hearts left")
	case o.Correct:
		_, _ = p.green.Fprintln(p.w, "It's correct.")
	default:
		_, _ = p.red.Fprintln(p.w, "It's wrong.")
	}
	return p.state(o.State)
}

func (p *printer) hearts(h hearts.Status) error {
	if ok, err := p.structured(h); ok {
		return err
	}
	fmt.Fprintf(p.w, "Hearts %s\n", heartsText(h))
	return nil
}

func heartsText(h hearts.Status) string {
	text := fmt.Sprintf("%s%s %d/%d",
		strings.Repeat("♥", h.Remaining), strings.Repeat("♡", max(h.Max-h.Remaining, 0)), h.Remaining, h.Max)
	if h.RefillAt != nil {
		text += ", " + refillText(h)
	}
	return text
}

func refillText(h hearts.Status) string {
	if h.RefillAt == nil {
		return "Hearts are full."
	}
	return fmt.Sprintf("Refill in %s.", (time.Duration(h.SecondsUntilRefill) * time.Second).String())
}
