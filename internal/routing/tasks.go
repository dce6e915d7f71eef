package routing

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	TaskKnowledge    = "knowledge"
	TaskCoding       = "coding"
	TaskMath         = "math"
	TaskFunction     = "function"
	TaskMultilingual = "multilingual"
	TaskGeneral      = "general"
)

// BenchmarkWeight is one benchmark's share in a task profile.
type BenchmarkWeight struct {
	Benchmark string  `mapstructure:"benchmark" yaml:"benchmark" json:"benchmark"`
	Weight    float64 `mapstructure:"weight" yaml:"weight" json:"weight"`
}

// TaskProfile describes one task category. Keyword and weight order are preserved.
type TaskProfile struct {
	Name     string            `mapstructure:"name" yaml:"name" json:"name"`
	Keywords []string          `mapstructure:"keywords" yaml:"keywords" json:"keywords"`
	Weights  []BenchmarkWeight `mapstructure:"weights" yaml:"weights" json:"weights"`
}

// DefaultTasks returns the built-in task profiles in detection order.
func DefaultTasks() []TaskProfile {
	return []TaskProfile{
		{
			Name:     TaskKnowledge,
			Keywords: []string{"explain", "what is", "define", "describe", "theory"},
			Weights:  []BenchmarkWeight{{"MMLU", 0.6}, {"GPQA", 0.4}},
		},
		{
			Name:     TaskCoding,
			Keywords: []string{"code", "program", "algorithm", "debug", "function"},
			Weights:  []BenchmarkWeight{{"HumanEval", 0.8}, {"MATH", 0.2}},
		},
		{
			Name:     TaskMath,
			Keywords: []string{"calculate", "solve", "equation", "math", "algebra"},
			Weights:  []BenchmarkWeight{{"MATH", 0.7}, {"GPQA", 0.3}},
		},
		{
			Name:     TaskFunction,
			Keywords: []string{"api", "call", "function", "tool", "execute"},
			Weights:  []BenchmarkWeight{{"BFCL", 1.0}},
		},
		{
			Name:     TaskMultilingual,
			Keywords: []string{"translate", "french", "spanish", "chinese", "german"},
			Weights:  []BenchmarkWeight{{"MGSM", 0.9}, {"MMLU", 0.1}},
		},
		{
			Name:    TaskGeneral,
			Weights: []BenchmarkWeight{{"MMLU", 0.3}, {"GPQA", 0.3}, {"HumanEval", 0.2}, {"MGSM", 0.2}},
		},
	}
}

// TaskSet is an ordered, validated collection of task profiles.
type TaskSet struct {
	tasks  []TaskProfile
	byName map[string]int
}

// NewTaskSet validates the profiles: unique names, non-negative weights, and exactly
// one "general" task without keywords.
func NewTaskSet(tasks []TaskProfile) (*TaskSet, error) {
	if len(tasks) == 0 {
		tasks = DefaultTasks()
	}

	ts := &TaskSet{
		tasks:  make([]TaskProfile, 0, len(tasks)),
		byName: make(map[string]int, len(tasks)),
	}

	for _, t := range tasks {
		name := strings.ToLower(strings.TrimSpace(t.Name))
		if name == "" {
			return nil, fmt.Errorf("task profile without a name")
		}
		if _, dup := ts.byName[name]; dup {
			return nil, fmt.Errorf("duplicate task profile %q", name)
		}
		if name == TaskGeneral && len(t.Keywords) > 0 {
			return nil, fmt.Errorf("task %q must not define keywords", TaskGeneral)
		}
		if name != TaskGeneral && len(t.Keywords) == 0 {
			return nil, fmt.Errorf("task %q has no keywords", name)
		}

		keywords := make([]string, 0, len(t.Keywords))
		for _, k := range t.Keywords {
			if k = strings.ToLower(k); k != "" {
				keywords = append(keywords, k)
			}
		}
		for _, w := range t.Weights {
			if w.Weight < 0 {
				return nil, fmt.Errorf("task %q: negative weight for %s", name, w.Benchmark)
			}
		}

		ts.byName[name] = len(ts.tasks)
		ts.tasks = append(ts.tasks, TaskProfile{
			Name:     name,
			Keywords: keywords,
			Weights:  append([]BenchmarkWeight(nil), t.Weights...),
		})
	}

	if _, ok := ts.byName[TaskGeneral]; !ok {
		return nil, fmt.Errorf("task set must contain a %q fallback", TaskGeneral)
	}

	return ts, nil
}

// LoadTaskFile reads a YAML list of task profiles.
func LoadTaskFile(path string) (*TaskSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read task file: %w", err)
	}

	var doc struct {
		Tasks []TaskProfile `yaml:"tasks"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse task file %s: %w", path, err)
	}

	return NewTaskSet(doc.Tasks)
}

// Profiles returns the tasks in detection order.
func (s *TaskSet) Profiles() []TaskProfile {
	return s.tasks
}

func (s *TaskSet) Names() []string {
	names := make([]string, len(s.tasks))
	for i, t := range s.tasks {
		names[i] = t.Name
	}
	return names
}

func (s *TaskSet) Get(name string) (TaskProfile, bool) {
	i, ok := s.byName[strings.ToLower(name)]
	if !ok {
		return TaskProfile{}, false
	}
	return s.tasks[i], true
}
