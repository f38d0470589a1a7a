package usecase

import (
	"encoding/json"
	"math"
	"strings"
)

const submissionRejectedReason = "Failed to initiate transcription."

type submitResponse struct {
	TaskID       string          `json:"taskId"`
	LegacyTaskID string          `json:"task_id"`
	Error        json.RawMessage `json:"error"`
}

func (r submitResponse) taskID() string {
	if id := strings.TrimSpace(r.TaskID); id != "" {
		return id
	}
	return strings.TrimSpace(r.LegacyTaskID)
}

type taskStatus string

const (
	taskStatusPending    taskStatus = "pending"
	taskStatusProcessing taskStatus = "processing"
	taskStatusComplete   taskStatus = "complete"
	taskStatusError      taskStatus = "error"
)

type statusResponse struct {
	Status        taskStatus      `json:"status"`
	Progress      *float64        `json:"progress"`
	Transcription *string         `json:"transcription"`
	Category      json.RawMessage `json:"category"`
	Error         json.RawMessage `json:"error"`
	Detail        json.RawMessage `json:"detail"`
	Message       json.RawMessage `json:"message"`
}

func decodeStatus(payload json.RawMessage) (statusResponse, error) {
	var status statusResponse
	if err := json.Unmarshal(payload, &status); err != nil {
		return statusResponse{}, err
	}
	status.Status = taskStatus(strings.ToLower(strings.TrimSpace(string(status.Status))))
	return status, nil
}

// outcome is the bounded metric label for a poll result.
func (s statusResponse) outcome() string {
	switch s.Status {
	case taskStatusPending, taskStatusProcessing, taskStatusComplete, taskStatusError:
		return string(s.Status)
	default:
		return "unknown"
	}
}

// progress returns the reported percentage, or 0 when absent.
func (s statusResponse) progress() int {
	if s.Progress == nil || math.IsNaN(*s.Progress) {
		return 0
	}
	return int(math.Floor(*s.Progress))
}

func (s statusResponse) transcript() string {
	if s.Transcription == nil {
		return ""
	}
	return *s.Transcription
}

// category returns the backend classification, or "" when absent.
func (s statusResponse) category() string {
	return rawText(s.Category)
}

// detail returns the first backend-provided error description, if any.
func (s statusResponse) detail() string {
	for _, raw := range []json.RawMessage{s.Error, s.Detail, s.Message} {
		if text := rawText(raw); text != "" {
			return text
		}
	}
	return ""
}

func rawText(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return strings.TrimSpace(text)
	}
	return trimmed
}
