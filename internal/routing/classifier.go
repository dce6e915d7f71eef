package routing

import "strings"

// mathSymbols trigger the math fallback when no keyword matched.
const mathSymbols = "+-*/=^"

// TaskClassifier maps a query to a task name by keyword matching.
type TaskClassifier struct {
	tasks *TaskSet
}

func NewTaskClassifier(tasks *TaskSet) *TaskClassifier {
	return &TaskClassifier{tasks: tasks}
}

// Detect returns the first task, in set order, with a keyword contained in the
// lower-cased query. Without a keyword hit, any arithmetic symbol means math
// (when the set has a math task), otherwise general.
func (c *TaskClassifier) Detect(query string) string {
	q := strings.ToLower(query)

	for _, t := range c.tasks.Profiles() {
		if t.Name == TaskGeneral {
			continue
		}
		for _, k := range t.Keywords {
			if strings.Contains(q, k) {
				return t.Name
			}
		}
	}

	if _, ok := c.tasks.Get(TaskMath); ok && strings.ContainsAny(q, mathSymbols) {
		return TaskMath
	}

	return TaskGeneral
}

// Resolve applies an explicit override, or detects when the override is empty or "auto".
func (c *TaskClassifier) Resolve(query, override string) (string, error) {
	o := strings.ToLower(strings.TrimSpace(override))
	if o == "" || o == "auto" {
		return c.Detect(query), nil
	}
	if _, ok := c.tasks.Get(o); !ok {
		return "", &StageError{Kind: KindInvalidInput, Stage: StageClassify, Err: ErrUnknownTask}
	}
	return o, nil
}
