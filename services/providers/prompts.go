package providers

import (
	"fmt"
	"strings"

	"github.com/taskflow/ai-backend/models"
)

const taskGenerationSystemPrompt = `You are an experienced project manager who breaks projects down into actionable tasks.
Respond with a single JSON object and nothing else, using this structure:
{
  "project_title": "short title for the project",
  "tasks": [
    {
      "title": "imperative task title",
      "description": "what needs to be done and the definition of done",
      "priority": "low | medium | high",
      "size": "xs | s | m | l | xl",
      "initial_story_points": 3,
      "due_date": "YYYY-MM-DD or null"
    }
  ],
  "summary": "one paragraph overview of the plan",
  "notes": ["assumptions you made"],
  "problems": ["risks or missing information"],
  "suggestions": ["ideas that would improve the project"]
}
Every task must have a title. Use an empty list when you have no notes, problems or suggestions.`

const projectAnalysisSystemPrompt = `You are an experienced project manager reviewing a software project.
Give a concise analysis covering scope, risks, missing work and recommended next steps.
Answer in plain prose with short paragraphs.`

const taskImprovementSystemPrompt = `You review task lists for software projects.
Respond with a JSON array of strings. Each string is one concrete, actionable suggestion
for improving the tasks (clarity, missing acceptance criteria, sizing, ordering, gaps).`

// ConnectionTestPrompt is the fixed message sent when testing provider connectivity
const ConnectionTestPrompt = "Hello! Please respond with 'Connection successful' to confirm the API is working."

func buildTaskGenerationPrompt(description string, opts TaskOptions) string {
	var b strings.Builder
	if opts.ProjectTitle != "" {
		fmt.Fprintf(&b, "Project title: %s\n\n", opts.ProjectTitle)
	}
	fmt.Fprintf(&b, "Project description:\n%s\n\n", strings.TrimSpace(description))
	if opts.MaxTasks > 0 {
		fmt.Fprintf(&b, "Generate at most %d tasks.\n", opts.MaxTasks)
	} else {
		b.WriteString("Generate the tasks needed to deliver this project.\n")
	}
	return b.String()
}

func buildProjectAnalysisPrompt(description string, existing []models.TaskDescriptor) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Project description:\n%s\n", strings.TrimSpace(description))
	if len(existing) > 0 {
		b.WriteString("\nCurrent tasks:\n")
		writeTaskList(&b, existing)
	} else {
		b.WriteString("\nThe project has no tasks yet.\n")
	}
	return b.String()
}

func buildTaskImprovementPrompt(tasks []models.TaskDescriptor) string {
	var b strings.Builder
	b.WriteString("Tasks:\n")
	writeTaskList(&b, tasks)
	return b.String()
}

func writeTaskList(b *strings.Builder, tasks []models.TaskDescriptor) {
	for i, t := range tasks {
		fmt.Fprintf(b, "%d. %s", i+1, t.Title)
		if t.Priority != "" {
			fmt.Fprintf(b, " [priority: %s]", t.Priority)
		}
		if t.Status != "" {
			fmt.Fprintf(b, " [status: %s]", t.Status)
		}
		if t.Description != "" {
			fmt.Fprintf(b, " - %s", t.Description)
		}
		b.WriteString("\n")
	}
}
