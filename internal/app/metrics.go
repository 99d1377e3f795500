package app

import (
	"fmt"
	"time"

	"quiz-widget-service/internal/domain"
)

// Score counts questions whose answer is the question's correct option.
// Questions without a correct option never score.
func (s *Session) Score() int {
	score := 0
	for i, a := range s.answers {
		if a == unanswered {
			continue
		}
		if correct := s.questions[i].CorrectIndex(); correct >= 0 && a == correct {
			score++
		}
	}
	return score
}

// Accuracy is the score as a rounded percentage of all questions.
func (s *Session) Accuracy() int {
	return percent(s.Score(), len(s.questions))
}

// AnsweredCount is the number of filled slots.
func (s *Session) AnsweredCount() int {
	n := 0
	for _, a := range s.answers {
		if a != unanswered {
			n++
		}
	}
	return n
}

// Progress is the answered count as a rounded percentage.
func (s *Session) Progress() int {
	return percent(s.AnsweredCount(), len(s.questions))
}

// CorrectAnswerIndex returns the correct option of the current question, or -1.
func (s *Session) CorrectAnswerIndex() int {
	return s.CurrentQuestion().CorrectIndex()
}

// ElapsedTime is frozen at completion and live while in progress.
func (s *Session) ElapsedTime() time.Duration {
	if s.completedAt != nil {
		return s.completedAt.Sub(s.startedAt)
	}
	return s.now().Sub(s.startedAt)
}

// FormattedTime renders the elapsed time as M:SS.
func (s *Session) FormattedTime() string {
	return formatElapsed(s.ElapsedTime())
}

// Results is the completion summary.
func (s *Session) Results() domain.Results {
	elapsed := s.ElapsedTime()
	return domain.Results{
		Score:         s.Score(),
		Total:         len(s.questions),
		Accuracy:      s.Accuracy(),
		ElapsedMS:     elapsed.Milliseconds(),
		FormattedTime: formatElapsed(elapsed),
	}
}

// State builds the read model for the presentation layer.
func (s *Session) State() domain.SessionView {
	elapsed := s.ElapsedTime()
	view := domain.SessionView{
		CurrentIndex:  s.current,
		Total:         len(s.questions),
		Question:      s.CurrentQuestion(),
		CanGoPrevious: s.CanGoPrevious(),
		CanGoNext:     s.CanGoNext(),
		IsLast:        s.IsLastQuestion(),
		Completed:     s.IsCompleted(),
		AnsweredCount: s.AnsweredCount(),
		Progress:      s.Progress(),
		ElapsedMS:     elapsed.Milliseconds(),
		FormattedTime: formatElapsed(elapsed),
	}
	if a, ok := s.CurrentAnswer(); ok {
		view.SelectedOption = &a
	}
	if view.SelectedOption != nil || view.Completed {
		if c := s.CorrectAnswerIndex(); c >= 0 {
			view.CorrectOption = &c
		}
	}
	if view.Completed {
		res := s.Results()
		view.Results = &res
	}
	return view
}

// percent rounds half away from zero. Integer arithmetic keeps exact halves
// such as 23/40 from drifting below .5.
func percent(n, total int) int {
	if total <= 0 || n <= 0 {
		return 0
	}
	return (200*n + total) / (2 * total)
}

// formatElapsed truncates to whole seconds; negative durations render as 0:00.
func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
