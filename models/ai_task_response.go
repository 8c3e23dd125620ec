package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TaskPriority values accepted on generated tasks
const (
	TaskPriorityLow    = "low"
	TaskPriorityMedium = "medium"
	TaskPriorityHigh   = "high"
)

// TaskStatusPending is the status given to generated tasks
const TaskStatusPending = "pending"

// TaskDescriptor is a task proposed by a model
type TaskDescriptor struct {
	Title              string `json:"title" validate:"required"`
	Description        string `json:"description,omitempty"`
	Status             string `json:"status,omitempty"`
	Priority           string `json:"priority,omitempty" validate:"omitempty,oneof=low medium high"`
	Size               string `json:"size,omitempty" validate:"omitempty,oneof=xs s m l xl"`
	InitialStoryPoints *int   `json:"initial_story_points,omitempty"`
	DueDate            string `json:"due_date,omitempty"`
}

// StringList is a list of strings that also decodes from a single JSON string
type StringList []string

// UnmarshalJSON accepts null, a string, or an array of strings
func (l *StringList) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	list, err := normalizeStrings(raw)
	if err != nil {
		return err
	}
	*l = list
	return nil
}

// NormalizeStrings converts a decoded value into a StringList.
// A scalar string becomes a one-element list; nil and "" become an empty list.
// Values of other types are formatted with %v.
func NormalizeStrings(v any) StringList {
	list, err := normalizeStrings(v)
	if err != nil {
		return StringList{fmt.Sprintf("%v", v)}
	}
	return list
}

func normalizeStrings(v any) (StringList, error) {
	switch t := v.(type) {
	case nil:
		return StringList{}, nil
	case string:
		if strings.TrimSpace(t) == "" {
			return StringList{}, nil
		}
		return StringList{t}, nil
	case []string:
		return compact(t), nil
	case StringList:
		return compact(t), nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			switch s := item.(type) {
			case string:
				out = append(out, s)
			case nil:
			default:
				out = append(out, fmt.Sprintf("%v", s))
			}
		}
		return compact(out), nil
	default:
		return nil, fmt.Errorf("expected string or list of strings, got %T", v)
	}
}

func compact(in []string) StringList {
	out := make(StringList, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// TaskExtras holds the optional parts of a successful task response
type TaskExtras struct {
	ProjectTitle string
	Notes        StringList
	Problems     StringList
	Suggestions  StringList
	Summary      string
	Raw          *AIResponse
}

// AITaskResponse is the outcome of a task generation call.
// A successful response never carries an error; a failed one never carries tasks.
type AITaskResponse struct {
	tasks        []TaskDescriptor
	projectTitle string
	notes        StringList
	problems     StringList
	suggestions  StringList
	summary      string
	raw          *AIResponse
	success      bool
	err          string
}

// SuccessTaskResponse builds a successful response
func SuccessTaskResponse(tasks []TaskDescriptor, extras TaskExtras) *AITaskResponse {
	copied := make([]TaskDescriptor, len(tasks))
	copy(copied, tasks)

	return &AITaskResponse{
		tasks:        copied,
		projectTitle: extras.ProjectTitle,
		notes:        NormalizeStrings(extras.Notes),
		problems:     NormalizeStrings(extras.Problems),
		suggestions:  NormalizeStrings(extras.Suggestions),
		summary:      extras.Summary,
		raw:          extras.Raw,
		success:      true,
	}
}

// FailedTaskResponse builds a failed response. raw may be nil.
func FailedTaskResponse(message string, raw *AIResponse) *AITaskResponse {
	if message == "" {
		message = "task generation failed"
	}
	return &AITaskResponse{
		tasks:       []TaskDescriptor{},
		notes:       StringList{},
		problems:    StringList{},
		suggestions: StringList{},
		raw:         raw,
		err:         message,
	}
}

func (r *AITaskResponse) Tasks() []TaskDescriptor {
	out := make([]TaskDescriptor, len(r.tasks))
	copy(out, r.tasks)
	return out
}

func (r *AITaskResponse) TaskCount() int { return len(r.tasks) }
func (r *AITaskResponse) ProjectTitle() string { return r.projectTitle }
func (r *AITaskResponse) Notes() []string { return append([]string{}, r.notes...) }
func (r *AITaskResponse) Problems() []string { return append([]string{}, r.problems...) }
func (r *AITaskResponse) Suggestions() []string { return append([]string{}, r.suggestions...) }
func (r *AITaskResponse) HasNotes() bool { return len(r.notes) > 0 }
func (r *AITaskResponse) HasProblems() bool { return len(r.problems) > 0 }
func (r *AITaskResponse) HasSuggestions() bool { return len(r.suggestions) > 0 }
func (r *AITaskResponse) Summary() string { return r.summary }
func (r *AITaskResponse) RawResponse() *AIResponse { return r.raw }
func (r *AITaskResponse) IsSuccess() bool { return r.success }

// ErrorMessage returns the failure reason, or "" on success
func (r *AITaskResponse) ErrorMessage() string { return r.err }

// HasCommunication reports whether the model left any notes, problems or suggestions
func (r *AITaskResponse) HasCommunication() bool {
	return r.HasNotes() || r.HasProblems() || r.HasSuggestions()
}

// ToMap returns the response as a plain map
func (r *AITaskResponse) ToMap() map[string]any {
	m := map[string]any{
		"success":     r.success,
		"tasks":       r.Tasks(),
		"task_count":  len(r.tasks),
		"notes":       r.Notes(),
		"problems":    r.Problems(),
		"suggestions": r.Suggestions(),
	}
	if r.projectTitle != "" {
		m["project_title"] = r.projectTitle
	}
	if r.summary != "" {
		m["summary"] = r.summary
	}
	if r.err != "" {
		m["error"] = r.err
	}
	if r.raw != nil {
		m["raw_response"] = r.raw.ToMap()
	}
	return m
}

// MarshalJSON encodes the response in the ToMap shape
func (r *AITaskResponse) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.ToMap())
}
