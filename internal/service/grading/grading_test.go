package grading

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yourusername/placement-api/internal/domain/entity"
)

func mcq(key string, options ...string) entity.Question {
	if len(options) == 0 {
		options = []string{"opt1", "opt2", "opt3", "opt4"}
	}
	return entity.Question{Type: entity.QuestionTypeMCQSingle, Text: "q", Options: options, CorrectOption: key}
}

func TestGrade_NoAnswers(t *testing.T) {
	// Arrange
	questions := []entity.Question{mcq("A"), mcq("B"), mcq("C")}

	// Act
	out := Grade(questions, map[int]string{})

	// Assert
	assert.Equal(t, Outcome{Correct: 0, Total: 3, Score: 0, Verdict: entity.VerdictFailed}, out)
}

func TestGrade_AllCorrect(t *testing.T) {
	questions := []entity.Question{mcq("A"), mcq("B"), mcq("D")}

	out := Grade(questions, map[int]string{0: "A", 1: "B", 2: "D"})

	assert.Equal(t, 100, out.Score)
	assert.Equal(t, entity.VerdictPassed, out.Verdict)
}

func TestGrade_HalfCorrect(t *testing.T) {
	// Ключ {A, B}, ответы {A, C}
	questions := []entity.Question{mcq("A"), mcq("B")}

	out := Grade(questions, map[int]string{0: "A", 1: "C"})

	assert.Equal(t, 1, out.Correct)
	assert.Equal(t, 50, out.Score)
	assert.Equal(t, entity.VerdictFailed, out.Verdict)
}

func TestGrade_SingleUnanswered(t *testing.T) {
	out := Grade([]entity.Question{mcq("A")}, nil)

	assert.Equal(t, 0, out.Score)
	assert.Equal(t, entity.VerdictFailed, out.Verdict)
}

func TestGrade_EmptyTest(t *testing.T) {
	out := Grade(nil, map[int]string{0: "A"})

	assert.Equal(t, Outcome{Verdict: entity.VerdictFailed}, out)
}

func TestGrade_OverwriteOrderIrrelevant(t *testing.T) {
	questions := []entity.Question{mcq("A"), mcq("B")}

	// Последняя запись побеждает: итоговая карта одна и та же
	first := map[int]string{}
	first[0] = "C"
	first[0] = "A"
	first[1] = "B"
	second := map[int]string{1: "B", 0: "A"}

	assert.Equal(t, Grade(questions, first), Grade(questions, second))
}

func TestGrade_MalformedKeyAndUnknownType(t *testing.T) {
	questions := []entity.Question{
		mcq("Z", "a", "b"),
		{Type: "essay", Options: []string{"a", "b"}, CorrectOption: "A"},
		mcq("", "a", "b"),
	}

	out := Grade(questions, map[int]string{0: "Z", 1: "A", 2: ""})

	assert.Equal(t, 0, out.Correct)
	assert.Equal(t, 3, out.Total)
}

func TestGrade_TrueFalse(t *testing.T) {
	questions := []entity.Question{
		{Type: entity.QuestionTypeTrueFalse, Options: []string{"True", "False"}, CorrectOption: "B"},
	}

	assert.Equal(t, 100, Grade(questions, map[int]string{0: "B"}).Score)
	assert.Equal(t, 0, Grade(questions, map[int]string{0: "A"}).Score)
}

func TestGrade_AnswersOutsideRangeIgnored(t *testing.T) {
	out := Grade([]entity.Question{mcq("A")}, map[int]string{0: "A", 5: "A", -1: "A"})

	assert.Equal(t, 1, out.Correct)
	assert.Equal(t, 100, out.Score)
}

func TestScore_RoundHalfUp(t *testing.T) {
	cases := []struct {
		correct, total, want int
	}{
		{1, 8, 13}, // 12.5
		{2, 3, 67}, // 66.67
		{1, 3, 33}, // 33.33
		{5, 8, 63}, // 62.5
		{3, 5, 60}, // граница
		{0, 0, 0},
		{7, 7, 100},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Score(c.correct, c.total), "%d/%d", c.correct, c.total)
	}
}

func TestVerdictFor_Threshold(t *testing.T) {
	assert.Equal(t, entity.VerdictFailed, VerdictFor(59))
	assert.Equal(t, entity.VerdictPassed, VerdictFor(60))
	assert.Equal(t, entity.VerdictPassed, VerdictFor(100))
}

type alwaysCorrect struct{}

func (alwaysCorrect) IsCorrect(entity.Question, string) bool { return true }

func TestGrader_Register(t *testing.T) {
	// Arrange
	g := NewGrader()
	g.Register("essay", alwaysCorrect{})
	questions := []entity.Question{{Type: "essay"}}

	// Act
	out := g.Grade(questions, map[int]string{0: "anything"})

	// Assert
	assert.Equal(t, 100, out.Score)
	assert.Equal(t, 0, Grade(questions, map[int]string{0: "anything"}).Score, "встроенный оценщик не меняется")
}
