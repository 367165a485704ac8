// Package models defines the core data structures for LaunchPipe.
//
// It includes the task entity served by the task API, the entry parameter set
// consumed by the session flow, and the JSON envelopes shared across modules.
package models

import (
	"errors"
	"strings"
	"time"
)

// Validation constants for task input validation
const (
	// MaxTaskDescriptionLength defines the maximum allowed length for a task description
	MaxTaskDescriptionLength = 1024
)

// Error variables for better error handling and testability
var (
	ErrEmptyDescription     = errors.New("Description is required")
	ErrDescriptionTooLong   = errors.New("description exceeds maximum length")
	ErrMissingTaskID        = errors.New("Task ID is required")
	ErrInvalidTaskID        = errors.New("Task ID must be an integer")
	ErrTaskNotFound         = errors.New("Task not found")
	ErrMissingEditFields    = errors.New("Both old_task_description and new_task_description are required")
	ErrAmbiguousDescription = errors.New("more than one task matches old_task_description")
)

// Task is a single todo-list entry.
type Task struct {
	ID            int64      `json:"id"`
	DateCreated   time.Time  `json:"date_created"`
	DateCompleted *time.Time `json:"date_completed"`
	Description   string     `json:"description"`
	OrderIndex    int        `json:"order_index"`
}

// TaskCreateRequest is the payload for POST /api/task.
type TaskCreateRequest struct {
	Description string `json:"description"`
}

// Validate checks the create payload.
func (r *TaskCreateRequest) Validate() error {
	if strings.TrimSpace(r.Description) == "" {
		return ErrEmptyDescription
	}
	if len(r.Description) > MaxTaskDescriptionLength {
		return ErrDescriptionTooLong
	}
	return nil
}

// TaskEditRequest is the payload for POST /api/task/edit.
type TaskEditRequest struct {
	OldDescription string `json:"old_task_description"`
	NewDescription string `json:"new_task_description"`
}

// Validate checks the edit payload.
func (r *TaskEditRequest) Validate() error {
	if r.OldDescription == "" || r.NewDescription == "" {
		return ErrMissingEditFields
	}
	if len(r.NewDescription) > MaxTaskDescriptionLength {
		return ErrDescriptionTooLong
	}
	return nil
}

// TaskOrderRequest is the payload for POST /api/task/order.
// IDs lists task ids in their new display order.
type TaskOrderRequest struct {
	IDs []int64 `json:"ids"`
}

// TaskError is the error body used by the task API: {"error": "..."}.
type TaskError struct {
	Error string `json:"error"`
}

// TaskMessage is the informational body used by the task API: {"message": "..."}.
type TaskMessage struct {
	Message string `json:"message"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// API Response types for consistent JSON responses

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
