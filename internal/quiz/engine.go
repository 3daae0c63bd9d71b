// Package quiz runs lesson quiz attempts: entry and resume, grading, hearts and first-pass rewards.
//
// The engine keeps no state between calls. Every transition of an attempt is a conditional
// write on its (question index, status) pair, so of two requests racing on the same question
// exactly one commits and the other fails with apperr.ErrStale.
package quiz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/at-ishikawa/lessonquiz/internal/apperr"
	"github.com/at-ishikawa/lessonquiz/internal/attempt"
	"github.com/at-ishikawa/lessonquiz/internal/content"
	"github.com/at-ishikawa/lessonquiz/internal/grading"
	"github.com/at-ishikawa/lessonquiz/internal/hearts"
	"github.com/at-ishikawa/lessonquiz/internal/reward"
	"github.com/at-ishikawa/lessonquiz/internal/store"
)

const (
	DefaultLessonXP = 10

	maxSettleRounds = 5
)

type Engine struct {
	content   content.Reader
	registry  *grading.Registry
	hearts    *hearts.Ledger
	attempts  *attempt.Repository
	rewards   reward.Granter
	metrics   *Metrics
	defaultXP int
	now       func() time.Time
	logger    *slog.Logger
}

type Option func(*Engine)

func WithMetrics(m *Metrics) Option { return func(e *Engine) { e.metrics = m } }

// WithDefaultXP sets the XP granted for lessons that do not define their own reward.
func WithDefaultXP(xp int) Option { return func(e *Engine) { e.defaultXP = xp } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func WithLogger(logger *slog.Logger) Option { return func(e *Engine) { e.logger = logger } }

func NewEngine(
	reader content.Reader,
	registry *grading.Registry,
	ledger *hearts.Ledger,
	attempts *attempt.Repository,
	rewards reward.Granter,
	opts ...Option,
) *Engine {
	e := &Engine{
		content:   reader,
		registry:  registry,
		hearts:    ledger,
		attempts:  attempts,
		rewards:   rewards,
		defaultXP: DefaultLessonXP,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = NewMetrics(nil)
	}
	return e
}

var _ Service = (*Engine)(nil)

// quizContext is the authored content of one lesson quiz plus the learner's section progress.
type quizContext struct {
	lesson            content.Lesson
	quiz              content.Quiz
	questions         []content.Question
	byID              map[string]content.Question
	sectionsTotal     int
	sectionsCompleted int
}

func (qc quizContext) unlocked() bool {
	return qc.sectionsCompleted >= qc.sectionsTotal
}

func (e *Engine) loadContext(ctx context.Context, learnerID, lessonID string) (quizContext, error) {
	lesson, err := e.content.Lesson(ctx, lessonID)
	if err != nil {
		return quizContext{}, err
	}
	sections, err := e.content.Sections(ctx, lessonID)
	if err != nil {
		return quizContext{}, err
	}
	completed, err := e.content.CompletedSections(ctx, learnerID, lessonID)
	if err != nil {
		return quizContext{}, err
	}
	quiz, err := e.content.ActiveQuiz(ctx, lessonID)
	if err != nil {
		return quizContext{}, err
	}
	questions, err := e.content.Questions(ctx, quiz.ID)
	if err != nil {
		return quizContext{}, err
	}
	if len(questions) == 0 {
		return quizContext{}, fmt.Errorf("quiz %s has no questions: %w", quiz.ID, apperr.ErrNotFound)
	}

	byID := make(map[string]content.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	return quizContext{
		lesson:            lesson,
		quiz:              quiz,
		questions:         questions,
		byID:              byID,
		sectionsTotal:     len(sections),
		sectionsCompleted: len(completed),
	}, nil
}

// GetState returns the learner's current view of the lesson quiz. It resumes an open attempt,
// or creates one when the lesson is unlocked and the learner has hearts left.
func (e *Engine) GetState(ctx context.Context, learnerID, lessonID string) (State, error) {
	qc, err := e.loadContext(ctx, learnerID, lessonID)
	if err != nil {
		return State{}, err
	}
	hs, err := e.hearts.Ensure(ctx, learnerID)
	if err != nil {
		return State{}, err
	}

	open, ok, err := e.attempts.FindOpen(ctx, learnerID, lessonID)
	if err != nil {
		return State{}, err
	}
	if ok {
		open, hs = e.settleDebits(ctx, open, hs)
		open, err = e.reconcile(ctx, open, hs)
		if err != nil {
			return State{}, err
		}
		return e.view(qc, open, hs)
	}

	latest, hasLatest, err := e.attempts.Latest(ctx, learnerID, lessonID)
	if err != nil {
		return State{}, err
	}
	if hasLatest {
		latest, hs = e.settleDebits(ctx, latest, hs)
	}
	if hasLatest && latest.Status == attempt.StatusPassed {
		state, err := e.view(qc, latest, hs)
		if err != nil {
			return State{}, err
		}
		// Re-granting is a no-op once applied and completes a grant that failed earlier.
		state.Reward = e.grant(ctx, qc, latest)
		return state, nil
	}

	if !qc.unlocked() {
		return e.emptyView(qc, KindLocked, hs), nil
	}
	if hs.Remaining == 0 {
		e.metrics.heartsBlocked.Inc()
		return e.emptyView(qc, KindBlockedHearts, hs), nil
	}

	var previous *attempt.Attempt
	if hasLatest {
		previous = &latest
	}
	created, err := e.create(ctx, learnerID, qc, previous, RestartWrongOnly)
	if err != nil {
		return State{}, err
	}
	created, err = e.reconcile(ctx, created, hs)
	if err != nil {
		return State{}, err
	}
	return e.view(qc, created, hs)
}

// Answer grades the response to the attempt's current question and advances the attempt.
func (e *Engine) Answer(ctx context.Context, input AnswerInput) (AnswerOutcome, error) {
	qc, err := e.loadContext(ctx, input.LearnerID, input.LessonID)
	if err != nil {
		return AnswerOutcome{}, err
	}

	current, ok, err := e.attempts.Get(ctx, input.AttemptID)
	if err != nil {
		return AnswerOutcome{}, err
	}
	if !ok || current.LearnerID != input.LearnerID || current.LessonID != input.LessonID {
		return AnswerOutcome{}, fmt.Errorf("attempt %s: %w", input.AttemptID, apperr.ErrNotFound)
	}
	if current.Status.Terminal() {
		return AnswerOutcome{}, fmt.Errorf("attempt %s is %s: %w", current.ID, current.Status, apperr.ErrAttemptCompleted)
	}
	if current.CurrentQuestionID() != input.QuestionID {
		return AnswerOutcome{}, fmt.Errorf("attempt %s expects question %q, got %q: %w",
			current.ID, current.CurrentQuestionID(), input.QuestionID, apperr.ErrOutOfOrder)
	}

	hs, err := e.hearts.Ensure(ctx, input.LearnerID)
	if err != nil {
		return AnswerOutcome{}, err
	}
	current, hs = e.settleDebits(ctx, current, hs)
	if hs.Remaining == 0 {
		e.metrics.heartsBlocked.Inc()
		paused, err := e.reconcile(ctx, current, hs)
		if err != nil {
			return AnswerOutcome{}, err
		}
		state, err := e.view(qc, paused, hs)
		if err != nil {
			return AnswerOutcome{}, err
		}
		return AnswerOutcome{BlockedByHearts: true, State: state}, nil
	}

	question, ok := qc.byID[input.QuestionID]
	if !ok {
		return AnswerOutcome{}, fmt.Errorf("question %s is no longer part of quiz %s: %w",
			input.QuestionID, qc.quiz.ID, apperr.ErrInvalidQuestionDefinition)
	}
	grader, err := e.registry.Require(question.Type)
	if err != nil {
		return AnswerOutcome{}, err
	}
	result, err := grader.Grade(question, input.Response)
	if err != nil {
		return AnswerOutcome{}, err
	}

	next := e.advance(current, question, result, hs)
	updated, ok, err := e.attempts.UpdateIf(ctx, current.ID, current.Version(), next)
	if err != nil {
		return AnswerOutcome{}, err
	}
	if !ok {
		e.metrics.staleAnswers.Inc()
		e.logger.InfoContext(ctx, "answer lost a concurrent update",
			"learner_id", input.LearnerID,
			"attempt_id", current.ID,
			"question_id", input.QuestionID)
		return AnswerOutcome{}, fmt.Errorf("attempt %s changed at question %d: %w",
			current.ID, current.CurrentQuestionIndex, apperr.ErrStale)
	}
	e.metrics.observeAnswer(result.Correct)

	if !result.Correct {
		updated, hs = e.settleDebits(ctx, updated, hs)
	}

	var granted *reward.Result
	if updated.Status.Terminal() {
		e.metrics.completed.WithLabelValues(string(updated.Status)).Inc()
		e.logger.InfoContext(ctx, "attempt completed",
			"learner_id", input.LearnerID,
			"lesson_id", input.LessonID,
			"attempt_id", updated.ID,
			"status", updated.Status,
			"score", updated.EarnedScore)
		if updated.Status == attempt.StatusPassed {
			granted = e.grant(ctx, qc, updated)
		}
	}

	state, err := e.view(qc, updated, hs)
	if err != nil {
		return AnswerOutcome{}, err
	}
	state.Reward = granted
	return AnswerOutcome{
		Correct:    result.Correct,
		Normalized: result.Normalized,
		State:      state,
	}, nil
}

// advance computes the attempt after the graded answer. A wrong answer is expected to take a
// heart, so the attempt pauses when that was the last one.
func (e *Engine) advance(current attempt.Attempt, question content.Question, result grading.GradeResult, hs hearts.State) attempt.Attempt {
	next := current
	next.Answers = maps.Clone(current.Answers)
	if next.Answers == nil {
		next.Answers = map[string]any{}
	}
	next.Answers[question.ID] = result.Normalized
	next.WrongQuestionIDs = slices.Clone(current.WrongQuestionIDs)

	remaining := hs.Remaining
	if result.Correct {
		next.CorrectCount++
		next.EarnedScore += question.Points
	} else {
		next.WrongQuestionIDs = append(next.WrongQuestionIDs, question.ID)
		next.PendingHeartDebits++
		remaining = max(remaining-1, 0)
	}
	next.CurrentQuestionIndex++

	switch {
	case next.CurrentQuestionIndex >= len(next.QuestionIDs):
		completedAt := e.now().UTC()
		next.CompletedAt = &completedAt
		if next.CorrectCount == len(next.QuestionIDs) {
			next.Status = attempt.StatusPassed
		} else {
			next.Status = attempt.StatusFailed
		}
	case remaining == 0:
		next.Status = attempt.StatusPausedNoHearts
	default:
		next.Status = attempt.StatusInProgress
	}
	return next
}

// Restart returns the open attempt if there is one, otherwise starts a new attempt.
// RestartWrongOnly retries only the questions missed in a failed previous attempt.
func (e *Engine) Restart(ctx context.Context, learnerID, lessonID string, mode RestartMode) (State, error) {
	switch mode {
	case "":
		mode = RestartWrongOnly
	case RestartWrongOnly, RestartFull:
	default:
		return State{}, fmt.Errorf("restart mode %q: %w", mode, apperr.ErrInvalidResponse)
	}

	qc, err := e.loadContext(ctx, learnerID, lessonID)
	if err != nil {
		return State{}, err
	}
	hs, err := e.hearts.Ensure(ctx, learnerID)
	if err != nil {
		return State{}, err
	}
	if hs.Remaining == 0 {
		e.metrics.heartsBlocked.Inc()
		return State{}, fmt.Errorf("restart %s: %w", lessonID, apperr.ErrNoHearts)
	}

	open, ok, err := e.attempts.FindOpen(ctx, learnerID, lessonID)
	if err != nil {
		return State{}, err
	}
	if ok {
		open, hs = e.settleDebits(ctx, open, hs)
		open, err = e.reconcile(ctx, open, hs)
		if err != nil {
			return State{}, err
		}
		return e.view(qc, open, hs)
	}

	latest, hasLatest, err := e.attempts.Latest(ctx, learnerID, lessonID)
	if err != nil {
		return State{}, err
	}
	if hasLatest && latest.Status == attempt.StatusPassed {
		return State{}, fmt.Errorf("restart %s: %w", lessonID, apperr.ErrAlreadyPassed)
	}
	if hasLatest {
		latest, hs = e.settleDebits(ctx, latest, hs)
		if hs.Remaining == 0 {
			e.metrics.heartsBlocked.Inc()
			return State{}, fmt.Errorf("restart %s: %w", lessonID, apperr.ErrNoHearts)
		}
	}
	if !qc.unlocked() {
		return State{}, fmt.Errorf("restart %s: %w", lessonID, apperr.ErrLessonLocked)
	}

	var previous *attempt.Attempt
	if hasLatest {
		previous = &latest
	}
	created, err := e.create(ctx, learnerID, qc, previous, mode)
	if err != nil {
		return State{}, err
	}
	return e.view(qc, created, hs)
}

// HeartsStatus returns the learner's hearts after applying a due refill.
func (e *Engine) HeartsStatus(ctx context.Context, learnerID string) (hearts.Status, error) {
	hs, err := e.hearts.Ensure(ctx, learnerID)
	if err != nil {
		return hearts.Status{}, err
	}
	return e.hearts.Status(hs), nil
}

// create starts an attempt. A concurrent request that created the open attempt first wins,
// and its attempt is returned.
func (e *Engine) create(ctx context.Context, learnerID string, qc quizContext, previous *attempt.Attempt, mode RestartMode) (attempt.Attempt, error) {
	id := attempt.NewID()
	questionIDs := wrongOnlySubset(qc, previous, mode)
	if len(questionIDs) == 0 {
		questionIDs = Order(id, qc.questions)
	}

	maxScore := 0
	for _, qid := range questionIDs {
		maxScore += qc.byID[qid].Points
	}

	created, err := e.attempts.Create(ctx, attempt.Attempt{
		ID:               id,
		LearnerID:        learnerID,
		LessonID:         qc.lesson.ID,
		QuizID:           qc.quiz.ID,
		Status:           attempt.StatusInProgress,
		MaxScore:         maxScore,
		QuestionIDs:      questionIDs,
		WrongQuestionIDs: []string{},
		Answers:          map[string]any{},
	})
	if errors.Is(err, store.ErrConflict) {
		open, ok, findErr := e.attempts.FindOpen(ctx, learnerID, qc.lesson.ID)
		if findErr != nil {
			return attempt.Attempt{}, findErr
		}
		if !ok {
			// The winner already completed its attempt.
			return attempt.Attempt{}, fmt.Errorf("create attempt for %s: %w", qc.lesson.ID, apperr.ErrStale)
		}
		return open, nil
	}
	if err != nil {
		return attempt.Attempt{}, err
	}

	e.logger.InfoContext(ctx, "attempt started",
		"learner_id", learnerID,
		"lesson_id", qc.lesson.ID,
		"attempt_id", created.ID,
		"questions", len(questionIDs),
		"wrong_only", len(questionIDs) < len(qc.questions))
	return created, nil
}

// wrongOnlySubset returns the questions missed in a failed previous attempt of the same quiz,
// in the order that attempt asked them. Questions removed from the quiz since are skipped.
func wrongOnlySubset(qc quizContext, previous *attempt.Attempt, mode RestartMode) []string {
	if mode != RestartWrongOnly || previous == nil ||
		previous.Status != attempt.StatusFailed || previous.QuizID != qc.quiz.ID {
		return nil
	}
	var subset []string
	for _, qid := range previous.QuestionIDs {
		if _, ok := qc.byID[qid]; ok && slices.Contains(previous.WrongQuestionIDs, qid) {
			subset = append(subset, qid)
		}
	}
	return subset
}

// reconcile pauses an in-progress attempt when the learner has no hearts and resumes a paused
// one when hearts are back. A lost race re-reads the attempt.
func (e *Engine) reconcile(ctx context.Context, a attempt.Attempt, hs hearts.State) (attempt.Attempt, error) {
	want := a.Status
	switch {
	case a.Status == attempt.StatusPausedNoHearts && hs.Remaining > 0:
		want = attempt.StatusInProgress
	case a.Status == attempt.StatusInProgress && hs.Remaining == 0:
		want = attempt.StatusPausedNoHearts
	}
	if want == a.Status {
		return a, nil
	}

	next := a
	next.Status = want
	updated, ok, err := e.attempts.UpdateIf(ctx, a.ID, a.Version(), next)
	if err != nil {
		return attempt.Attempt{}, err
	}
	if ok {
		e.logger.DebugContext(ctx, "attempt reconciled with hearts",
			"attempt_id", a.ID,
			"from", a.Status,
			"to", want)
		return updated, nil
	}

	reread, found, err := e.attempts.Get(ctx, a.ID)
	if err != nil {
		return attempt.Attempt{}, err
	}
	if !found {
		return attempt.Attempt{}, fmt.Errorf("attempt %s: %w", a.ID, apperr.ErrNotFound)
	}
	return reread, nil
}

// settleDebits takes the hearts owed by wrong answers of a. Each heart is claimed on the attempt
// before it is taken, so two requests never take the same one. A failed take returns the claim
// and the next request that reads the attempt tries again.
func (e *Engine) settleDebits(ctx context.Context, a attempt.Attempt, hs hearts.State) (attempt.Attempt, hearts.State) {
	for i := 0; a.PendingHeartDebits > 0 && i < maxSettleRounds; i++ {
		claimed, ok, err := e.attempts.SetPendingDebits(ctx, a.ID, a.PendingHeartDebits, a.PendingHeartDebits-1)
		if err != nil {
			e.logger.ErrorContext(ctx, "failed to claim heart debit",
				"attempt_id", a.ID,
				"error", err)
			return a, hs
		}
		if !ok {
			reread, found, err := e.attempts.Get(ctx, a.ID)
			if err != nil || !found {
				e.logger.ErrorContext(ctx, "failed to re-read attempt with heart debits",
					"attempt_id", a.ID,
					"error", err)
				return a, hs
			}
			a = reread
			continue
		}

		consumed, err := e.hearts.Consume(ctx, a.LearnerID, hs)
		if err != nil {
			e.logger.ErrorContext(ctx, "failed to consume heart",
				"learner_id", a.LearnerID,
				"attempt_id", a.ID,
				"error", err)
			returned, ok, err := e.attempts.SetPendingDebits(ctx, a.ID, claimed.PendingHeartDebits, claimed.PendingHeartDebits+1)
			if err != nil || !ok {
				e.logger.ErrorContext(ctx, "failed to return heart debit",
					"attempt_id", a.ID,
					"error", err)
				return claimed, hs
			}
			return returned, hs
		}
		e.metrics.heartsTaken.Inc()
		a, hs = claimed, consumed
	}
	return a, hs
}

// grant applies the first-pass reward. Failures are logged; the next view of the passed
// attempt retries the grant.
func (e *Engine) grant(ctx context.Context, qc quizContext, a attempt.Attempt) *reward.Result {
	xp := qc.lesson.XPReward
	if xp <= 0 {
		xp = e.defaultXP
	}
	var badge string
	if qc.lesson.Badge != nil {
		badge = *qc.lesson.Badge
	}

	result, err := e.rewards.GrantIfFirstPass(ctx, a.LearnerID, a.LessonID, xp, badge)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to grant reward",
			"learner_id", a.LearnerID,
			"lesson_id", a.LessonID,
			"attempt_id", a.ID,
			"error", err)
		return nil
	}
	return &result
}

func (e *Engine) view(qc quizContext, a attempt.Attempt, hs hearts.State) (State, error) {
	state := State{
		Kind:             StateKind(a.Status),
		LessonID:         a.LessonID,
		QuizID:           a.QuizID,
		AttemptID:        a.ID,
		QuestionIndex:    a.CurrentQuestionIndex,
		QuestionCount:    len(a.QuestionIDs),
		CorrectCount:     a.CorrectCount,
		EarnedScore:      a.EarnedScore,
		MaxScore:         a.MaxScore,
		WrongQuestionIDs: a.WrongQuestionIDs,
		Hearts:           e.hearts.Status(hs),
		Progress: ProgressMetadata{
			SectionsTotal:     qc.sectionsTotal,
			SectionsCompleted: qc.sectionsCompleted,
			QuizUnlocked:      qc.unlocked(),
			Answered:          a.CurrentQuestionIndex,
			Total:             len(a.QuestionIDs),
			Status:            string(a.Status),
		},
	}
	if !a.Status.Open() {
		return state, nil
	}

	qid := a.CurrentQuestionID()
	question, ok := qc.byID[qid]
	if !ok {
		return State{}, fmt.Errorf("question %s of attempt %s is no longer part of quiz %s: %w",
			qid, a.ID, qc.quiz.ID, apperr.ErrInvalidQuestionDefinition)
	}
	grader, err := e.registry.Require(question.Type)
	if err != nil {
		return State{}, err
	}
	payload, err := grader.BuildPayload(question)
	if err != nil {
		return State{}, err
	}
	state.Question = &QuestionView{
		ID:      question.ID,
		Type:    question.Type,
		Prompt:  question.Prompt,
		Points:  question.Points,
		Payload: payload,
	}
	return state, nil
}

func (e *Engine) emptyView(qc quizContext, kind StateKind, hs hearts.State) State {
	return State{
		Kind:          kind,
		LessonID:      qc.lesson.ID,
		QuizID:        qc.quiz.ID,
		QuestionCount: len(qc.questions),
		Hearts:        e.hearts.Status(hs),
		Progress: ProgressMetadata{
			SectionsTotal:     qc.sectionsTotal,
			SectionsCompleted: qc.sectionsCompleted,
			QuizUnlocked:      qc.unlocked(),
			Total:             len(qc.questions),
			Status:            string(kind),
		},
	}
}
