package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/taskflow/ai-backend/models"
)

var (
	fencedBlock  = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")
	bulletPrefix = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+`)
)

var validSizes = map[string]bool{"xs": true, "s": true, "m": true, "l": true, "xl": true}

// RunTaskGeneration implements Provider.GenerateTasks on top of any Chatter
func RunTaskGeneration(ctx context.Context, c Chatter, description string, opts TaskOptions) *models.AITaskResponse {
	if strings.TrimSpace(description) == "" {
		return models.FailedTaskResponse("project description is required", nil)
	}

	chatOpts := opts.ChatOptions
	chatOpts.SystemPrompt = joinPrompts(taskGenerationSystemPrompt, opts.SystemPrompt)

	resp, err := c.Chat(ctx, []Message{
		{Role: RoleUser, Content: buildTaskGenerationPrompt(description, opts)},
	}, chatOpts)
	if err != nil {
		return models.FailedTaskResponse("AI request failed: "+err.Error(), nil)
	}

	result := ParseTaskResponse(resp, opts.MaxTasks)
	if result.IsSuccess() && result.ProjectTitle() == "" && opts.ProjectTitle != "" {
		return models.SuccessTaskResponse(result.Tasks(), models.TaskExtras{
			ProjectTitle: opts.ProjectTitle,
			Notes:        result.Notes(),
			Problems:     result.Problems(),
			Suggestions:  result.Suggestions(),
			Summary:      result.Summary(),
			Raw:          result.RawResponse(),
		})
	}
	return result
}

// RunProjectAnalysis implements Provider.AnalyzeProject on top of any Chatter
func RunProjectAnalysis(ctx context.Context, c Chatter, description string, existing []models.TaskDescriptor, opts ChatOptions) (string, error) {
	if strings.TrimSpace(description) == "" {
		return "", errors.New("project description is required")
	}

	opts.SystemPrompt = joinPrompts(projectAnalysisSystemPrompt, opts.SystemPrompt)
	resp, err := c.Chat(ctx, []Message{
		{Role: RoleUser, Content: buildProjectAnalysisPrompt(description, existing)},
	}, opts)
	if err != nil {
		return "", err
	}
	if !resp.IsSuccessful() {
		return "", &ResponseParseError{Reason: "model returned an empty analysis"}
	}
	return strings.TrimSpace(resp.Content()), nil
}

// RunTaskImprovements implements Provider.SuggestTaskImprovements on top of any Chatter
func RunTaskImprovements(ctx context.Context, c Chatter, tasks []models.TaskDescriptor, opts ChatOptions) ([]string, error) {
	if len(tasks) == 0 {
		return []string{}, nil
	}

	opts.SystemPrompt = joinPrompts(taskImprovementSystemPrompt, opts.SystemPrompt)
	resp, err := c.Chat(ctx, []Message{
		{Role: RoleUser, Content: buildTaskImprovementPrompt(tasks)},
	}, opts)
	if err != nil {
		return nil, err
	}
	return ParseSuggestions(resp.Content()), nil
}

type taskEnvelope struct {
	ProjectTitle string            `json:"project_title"`
	Tasks        []taskPayload     `json:"tasks"`
	Summary      string            `json:"summary"`
	Notes        models.StringList `json:"notes"`
	Problems     models.StringList `json:"problems"`
	Suggestions  models.StringList `json:"suggestions"`
}

type taskPayload struct {
	Title              string `json:"title"`
	Description        string `json:"description"`
	Status             string `json:"status"`
	Priority           string `json:"priority"`
	Size               string `json:"size"`
	InitialStoryPoints any    `json:"initial_story_points"`
	StoryPoints        any    `json:"story_points"`
	DueDate            string `json:"due_date"`
}

// ParseTaskResponse turns raw model output into an AITaskResponse.
// Unparseable or malformed output yields the failed variant with raw attached.
func ParseTaskResponse(raw *models.AIResponse, maxTasks int) *models.AITaskResponse {
	if raw == nil || !raw.IsSuccessful() {
		return models.FailedTaskResponse((&ResponseParseError{Reason: "model returned an empty response"}).Error(), raw)
	}

	payload, err := ExtractJSON(raw.Content())
	if err != nil {
		return models.FailedTaskResponse(err.Error(), raw)
	}

	var env taskEnvelope
	if strings.HasPrefix(payload, "[") {
		err = json.Unmarshal([]byte(payload), &env.Tasks)
	} else {
		err = json.Unmarshal([]byte(payload), &env)
	}
	if err != nil {
		return models.FailedTaskResponse((&ResponseParseError{Reason: "malformed task schema", Cause: err}).Error(), raw)
	}

	if len(env.Tasks) == 0 {
		return models.FailedTaskResponse((&ResponseParseError{Reason: "no tasks found in response"}).Error(), raw)
	}

	tasks := make([]models.TaskDescriptor, 0, len(env.Tasks))
	for i, p := range env.Tasks {
		if strings.TrimSpace(p.Title) == "" {
			return models.FailedTaskResponse((&ResponseParseError{Reason: fmt.Sprintf("task %d is missing a title", i+1)}).Error(), raw)
		}
		tasks = append(tasks, normalizeTask(p))
	}

	if maxTasks > 0 && len(tasks) > maxTasks {
		tasks = tasks[:maxTasks]
	}

	return models.SuccessTaskResponse(tasks, models.TaskExtras{
		ProjectTitle: strings.TrimSpace(env.ProjectTitle),
		Notes:        env.Notes,
		Problems:     env.Problems,
		Suggestions:  env.Suggestions,
		Summary:      strings.TrimSpace(env.Summary),
		Raw:          raw,
	})
}

func normalizeTask(p taskPayload) models.TaskDescriptor {
	t := models.TaskDescriptor{
		Title:       strings.TrimSpace(p.Title),
		Description: strings.TrimSpace(p.Description),
		Status:      strings.ToLower(strings.TrimSpace(p.Status)),
		Priority:    strings.ToLower(strings.TrimSpace(p.Priority)),
		Size:        strings.ToLower(strings.TrimSpace(p.Size)),
	}

	if t.Status == "" {
		t.Status = models.TaskStatusPending
	}
	switch t.Priority {
	case models.TaskPriorityLow, models.TaskPriorityMedium, models.TaskPriorityHigh:
	case "urgent", "critical":
		t.Priority = models.TaskPriorityHigh
	default:
		t.Priority = models.TaskPriorityMedium
	}
	if !validSizes[t.Size] {
		t.Size = ""
	}

	points := p.InitialStoryPoints
	if points == nil {
		points = p.StoryPoints
	}
	if n, ok := toNonNegativeInt(points); ok {
		t.InitialStoryPoints = &n
	}

	if due := strings.TrimSpace(p.DueDate); due != "" {
		if _, err := time.Parse("2006-01-02", due); err == nil {
			t.DueDate = due
		}
	}
	return t
}

func toNonNegativeInt(v any) (int, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(math.Round(f)), true
}

// ExtractJSON pulls the first JSON object or array out of model output.
// It understands fenced code blocks and tolerates prose around the payload.
func ExtractJSON(text string) (string, error) {
	candidate := strings.TrimSpace(text)
	if m := fencedBlock.FindStringSubmatch(candidate); m != nil {
		candidate = strings.TrimSpace(m[1])
	}

	if json.Valid([]byte(candidate)) && (strings.HasPrefix(candidate, "{") || strings.HasPrefix(candidate, "[")) {
		return candidate, nil
	}

	if strings.IndexAny(candidate, "{[") < 0 {
		return "", &ResponseParseError{Reason: "no JSON found in response"}
	}

	// Prose may itself contain brackets, so try every opener and keep the first complete value.
	for i := 0; i < len(candidate); i++ {
		if candidate[i] != '{' && candidate[i] != '[' {
			continue
		}
		var raw json.RawMessage
		if err := json.NewDecoder(strings.NewReader(candidate[i:])).Decode(&raw); err == nil {
			return string(raw), nil
		}
	}
	return "", &ResponseParseError{Reason: "invalid JSON in response"}
}

// ParseSuggestions reads a list of suggestions from model output.
// JSON arrays and {"suggestions": [...]} objects are preferred; otherwise each
// non-empty line is one suggestion with list markers stripped.
func ParseSuggestions(text string) []string {
	if payload, err := ExtractJSON(text); err == nil {
		var list models.StringList
		if err := json.Unmarshal([]byte(payload), &list); err == nil && len(list) > 0 {
			return list
		}
		var env struct {
			Suggestions models.StringList `json:"suggestions"`
		}
		if err := json.Unmarshal([]byte(payload), &env); err == nil && len(env.Suggestions) > 0 {
			return env.Suggestions
		}
	}

	out := []string{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(bulletPrefix.ReplaceAllString(line, ""))
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}
		out = append(out, line)
	}
	return out
}

func joinPrompts(base, extra string) string {
	if strings.TrimSpace(extra) == "" {
		return base
	}
	return base + "\n\n" + strings.TrimSpace(extra)
}
