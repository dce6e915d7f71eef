package routing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDefaultClassifier(t *testing.T) *TaskClassifier {
	t.Helper()
	ts, err := NewTaskSet(DefaultTasks())
	require.NoError(t, err)
	return NewTaskClassifier(ts)
}

func TestDetect(t *testing.T) {
	c := newDefaultClassifier(t)

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"knowledge keyword", "Explain quantum entanglement", TaskKnowledge},
		{"multi word keyword", "What is a monad?", TaskKnowledge},
		{"coding keyword", "Please debug my loop", TaskCoding},
		{"math keyword", "solve the equation x^2=4", TaskMath},
		{"math symbol fallback", "2 + 2", TaskMath},
		{"caret fallback", "x^y", TaskMath},
		{"function keyword", "execute the workflow", TaskFunction},
		{"multilingual keyword", "Translate hello into Spanish", TaskMultilingual},
		{"case insensitive", "TRANSLATE THIS", TaskMultilingual},
		{"general fallback", "Hello there", TaskGeneral},
		{"empty query", "", TaskGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Detect(tt.query))
		})
	}
}

func TestDetect_EarlierTaskWinsOnOverlap(t *testing.T) {
	c := newDefaultClassifier(t)

	// "function" is a keyword of both coding and function; coding is enumerated first
	assert.Equal(t, TaskCoding, c.Detect("write a function"))
	// knowledge beats math
	assert.Equal(t, TaskKnowledge, c.Detect("explain how to solve this equation"))
}

func TestDetect_AlwaysReturnsKnownTask(t *testing.T) {
	c := newDefaultClassifier(t)

	for _, q := range []string{"", "?", "a-b", "名前は何ですか", "call me maybe", "¿qué?"} {
		_, ok := c.tasks.Get(c.Detect(q))
		assert.True(t, ok, "query %q", q)
	}
}

func TestDetect_Deterministic(t *testing.T) {
	c := newDefaultClassifier(t)
	q := "describe the algorithm and translate it to french"
	first := c.Detect(q)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, c.Detect(q))
	}
}

func TestResolve(t *testing.T) {
	c := newDefaultClassifier(t)

	got, err := c.Resolve("solve 3x = 9", "auto")
	require.NoError(t, err)
	assert.Equal(t, TaskMath, got)

	got, err = c.Resolve("solve 3x = 9", "")
	require.NoError(t, err)
	assert.Equal(t, TaskMath, got)

	got, err = c.Resolve("solve 3x = 9", "Coding")
	require.NoError(t, err)
	assert.Equal(t, TaskCoding, got)

	_, err = c.Resolve("anything", "poetry")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownTask))
	assert.Equal(t, KindInvalidInput, KindOf(err))
	assert.Equal(t, StageClassify, StageOf(err))
}

func TestNewTaskSet_Validation(t *testing.T) {
	_, err := NewTaskSet([]TaskProfile{{Name: "coding", Keywords: []string{"code"}}})
	assert.Error(t, err, "missing general")

	_, err = NewTaskSet([]TaskProfile{{Name: "general", Keywords: []string{"x"}}})
	assert.Error(t, err, "general with keywords")

	_, err = NewTaskSet([]TaskProfile{
		{Name: "general"},
		{Name: "General"},
	})
	assert.Error(t, err, "duplicate")

	_, err = NewTaskSet([]TaskProfile{
		{Name: "general", Weights: []BenchmarkWeight{{"MMLU", -1}}},
	})
	assert.Error(t, err, "negative weight")

	ts, err := NewTaskSet(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"knowledge", "coding", "math", "function", "multilingual", "general"}, ts.Names())
}

func TestCustomTaskSet_NoMathFallbackWithoutMathTask(t *testing.T) {
	ts, err := NewTaskSet([]TaskProfile{
		{Name: "support", Keywords: []string{"password"}},
		{Name: "general"},
	})
	require.NoError(t, err)
	c := NewTaskClassifier(ts)

	assert.Equal(t, "support", c.Detect("reset my PASSWORD"))
	assert.Equal(t, TaskGeneral, c.Detect("1 + 1"))
}
