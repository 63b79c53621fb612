package tui

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"charm.land/bubbles/v2/textinput"
	"github.com/hylla/taskdeck/internal/domain"
)

// Task form field order.
const (
	fieldTitle = iota
	fieldDescription
	fieldType
	fieldPriority
	fieldStatus
	fieldEffort
	fieldPercent
	fieldDue
	fieldCount
)

var formLabels = [fieldCount]string{
	"title", "description", "type", "priority", "status", "effort", "percent", "due",
}

const (
	defaultFormPriority = domain.PriorityMedium
	defaultFormEffort   = 1
)

// newModalInput constructs modal input.
func newModalInput(prompt, placeholder, value string, limit int) textinput.Model {
	in := textinput.New()
	in.Prompt = prompt
	in.Placeholder = placeholder
	in.CharLimit = limit
	if value != "" {
		in.SetValue(value)
	}
	return in
}

// newTaskFormInputs builds the form inputs, prefilled from task when editing.
func newTaskFormInputs(task *domain.Task) []textinput.Model {
	values := [fieldCount]string{}
	if task != nil {
		values[fieldTitle] = task.Title
		values[fieldDescription] = task.Description
		values[fieldType] = string(task.Type)
		values[fieldPriority] = strconv.Itoa(int(task.Priority))
		values[fieldStatus] = string(task.Status)
		values[fieldEffort] = strconv.FormatFloat(task.Effort, 'f', -1, 64)
		values[fieldPercent] = strconv.FormatFloat(task.PercentCompleted*100, 'f', -1, 64)
		if task.DueDate != nil {
			values[fieldDue] = task.DueDate.UTC().Format(time.DateOnly)
		}
	}
	typeNames := make([]string, len(domain.TaskTypes))
	for i, tt := range domain.TaskTypes {
		typeNames[i] = string(tt)
	}
	return []textinput.Model{
		newModalInput("", "what needs doing", values[fieldTitle], 120),
		newModalInput("", "markdown notes", values[fieldDescription], 2000),
		newModalInput("", strings.Join(typeNames, "|"), values[fieldType], 16),
		newModalInput("", "1-4 (default 2)", values[fieldPriority], 1),
		newModalInput("", "pending|in progress|completed", values[fieldStatus], 16),
		newModalInput("", "hours (default 1)", values[fieldEffort], 10),
		newModalInput("", "0-100", values[fieldPercent], 5),
		newModalInput("", "YYYY-MM-DD", values[fieldDue], 10),
	}
}

// parseTaskForm turns raw form values into a validated task payload. base
// carries fields the form does not show, such as completed_at on edit.
func parseTaskForm(inputs []textinput.Model, base domain.TaskInput) (domain.TaskInput, error) {
	value := func(idx int) string {
		if idx >= len(inputs) {
			return ""
		}
		return strings.TrimSpace(inputs[idx].Value())
	}

	in := base
	in.Title = value(fieldTitle)
	if in.Title == "" {
		return domain.TaskInput{}, domain.ErrTitleRequired
	}
	in.Description = value(fieldDescription)

	in.Type = domain.TypeTask
	if raw := strings.ToLower(value(fieldType)); raw != "" {
		if !slices.Contains(domain.TaskTypes, domain.TaskType(raw)) {
			return domain.TaskInput{}, fmt.Errorf("type must be one of task, bug, feature or improvement")
		}
		in.Type = domain.TaskType(raw)
	}

	in.Priority = defaultFormPriority
	if raw := value(fieldPriority); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil || !domain.Priority(p).Valid() {
			return domain.TaskInput{}, fmt.Errorf("priority must be between 1 and 4")
		}
		in.Priority = domain.Priority(p)
	}

	in.Status = domain.Status(strings.ToLower(value(fieldStatus)))

	in.Effort = defaultFormEffort
	if raw := value(fieldEffort); raw != "" {
		effort, err := strconv.ParseFloat(raw, 64)
		if err != nil || effort < 0 {
			return domain.TaskInput{}, fmt.Errorf("effort must be a non-negative number")
		}
		in.Effort = effort
	}

	in.PercentCompleted = 0
	if raw := strings.TrimSuffix(value(fieldPercent), "%"); raw != "" {
		pct, err := strconv.ParseFloat(raw, 64)
		if err != nil || pct < 0 || pct > 100 {
			return domain.TaskInput{}, fmt.Errorf("percent must be between 0 and 100")
		}
		in.PercentCompleted = pct / 100
	}

	due, err := domain.ParseDueDate(value(fieldDue))
	if err != nil {
		return domain.TaskInput{}, err
	}
	in.DueDate = due

	return domain.NormalizeTaskInput(in)
}
