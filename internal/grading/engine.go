package grading

// Q is a minimal view of a question needed for grading.
// Keep this in sync with whatever fields your store uses.
type Q struct {
	Type    string
	Points  int
	Answers []Key
}

// Key is one authored answer option, with its correctness flag.
type Key struct {
	ID      string
	Text    string
	Correct bool
}

// Response is what the learner submitted for one question.
type Response struct {
	AnswerID string // multiple_choice
	Text     string // true_false, fill_in_blank
}

// Result is the outcome of grading a single question response.
type Result struct {
	Correct      bool
	PointsEarned int
}

// Strategy grades a single question. Implementations are pure: no I/O,
// no mutation of inputs.
type Strategy interface {
	Grade(q Q, resp Response) Result
}

// Grader routes by question type to the correct Strategy.
type Grader interface {
	Grade(q Q, resp Response) Result
}

type defaultGrader struct {
	strategies map[string]Strategy
}

func (g *defaultGrader) Grade(q Q, resp Response) Result {
	s, ok := g.strategies[q.Type]
	if !ok {
		// unknown type: zero points, never an error
		return Result{}
	}
	return s.Grade(q, resp)
}

// NewDefaultGrader installs built-in strategies.
func NewDefaultGrader() Grader {
	return &defaultGrader{
		strategies: map[string]Strategy{
			"multiple_choice": multipleChoiceStrategy{},
			"true_false":      trueFalseStrategy{},
			"fill_in_blank":   fillInBlankStrategy{},
		},
	}
}

// --- Strategies ---

type multipleChoiceStrategy struct{}

// Correct iff the submitted answer id is the one flagged correct.
// No id match means incorrect, zero points, no error.
func (multipleChoiceStrategy) Grade(q Q, resp Response) Result {
	if resp.AnswerID == "" {
		return Result{}
	}
	for _, k := range q.Answers {
		if k.Correct && k.ID == resp.AnswerID {
			return Result{Correct: true, PointsEarned: q.Points}
		}
	}
	return Result{}
}

type trueFalseStrategy struct{}

// Correct iff the submitted text case-insensitively equals the text of the
// answer flagged correct.
func (trueFalseStrategy) Grade(q Q, resp Response) Result {
	for _, k := range q.Answers {
		if k.Correct && equalFold(resp.Text, k.Text) {
			return Result{Correct: true, PointsEarned: q.Points}
		}
	}
	return Result{}
}

type fillInBlankStrategy struct{}

// Correct iff the trimmed, lower-cased text matches any answer flagged
// correct. Multiple correct answers represent accepted spellings/synonyms.
func (fillInBlankStrategy) Grade(q Q, resp Response) Result {
	got := normalize(resp.Text)
	if got == "" {
		return Result{}
	}
	for _, k := range q.Answers {
		if k.Correct && normalize(k.Text) == got {
			return Result{Correct: true, PointsEarned: q.Points}
		}
	}
	return Result{}
}
