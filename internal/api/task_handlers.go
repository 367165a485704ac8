package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/BTreeMap/LaunchPipe/internal/models"
)

// The task API keeps its historical wire format: bare task objects on
// success, {"error": ...} on failure and {"message": ...} for notices.

// parseTaskID reads the id query parameter.
func parseTaskID(r *http.Request) (int64, error) {
	raw := r.URL.Query().Get("id")
	if raw == "" {
		return 0, models.ErrMissingTaskID
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, models.ErrInvalidTaskID
	}
	return id, nil
}

func (s *Server) taskHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.taskHandler: processing task request", "method", r.Method, "path", r.URL.Path)
	switch r.Method {
	case http.MethodGet:
		tasks, err := s.st.ListTasks()
		if err != nil {
			slog.Error("Server.taskHandler: failed to list tasks", "error", err)
			taskError(w, http.StatusInternalServerError, "Failed to retrieve tasks")
			return
		}
		if tasks == nil {
			tasks = []models.Task{}
		}
		writeJSONResponse(w, http.StatusOK, tasks)

	case http.MethodPost:
		var req models.TaskCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			slog.Warn("Server.taskHandler: failed to decode JSON", "error", err)
			taskError(w, http.StatusBadRequest, "Invalid JSON format")
			return
		}
		if err := req.Validate(); err != nil {
			slog.Warn("Server.taskHandler: validation failed", "error", err)
			taskError(w, http.StatusBadRequest, err.Error())
			return
		}
		task, err := s.st.CreateTask(req.Description)
		if err != nil {
			slog.Error("Server.taskHandler: failed to create task", "error", err)
			taskError(w, http.StatusInternalServerError, "Failed to create task")
			return
		}
		slog.Info("Server.taskHandler: task created", "id", task.ID, "order_index", task.OrderIndex)
		writeJSONResponse(w, http.StatusCreated, task)

	default:
		methodNotAllowed(w, "Server.taskHandler", r.Method, "GET, POST")
	}
}

func (s *Server) completeTaskHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.completeTaskHandler: processing request", "method", r.Method, "query", r.URL.RawQuery)
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "Server.completeTaskHandler", r.Method, http.MethodPost)
		return
	}
	id, err := parseTaskID(r)
	if err != nil {
		taskError(w, http.StatusBadRequest, err.Error())
		return
	}
	task, err := s.st.CompleteTask(id, s.now())
	if err != nil {
		slog.Error("Server.completeTaskHandler: failed to complete task", "error", err, "id", id)
		taskError(w, http.StatusInternalServerError, "Failed to complete task")
		return
	}
	if task == nil {
		taskError(w, http.StatusNotFound, models.ErrTaskNotFound.Error())
		return
	}
	slog.Info("Server.completeTaskHandler: task completed", "id", id)
	writeJSONResponse(w, http.StatusOK, task)
}

func (s *Server) deleteTaskHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.deleteTaskHandler: processing request", "method", r.Method, "query", r.URL.RawQuery)
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, "Server.deleteTaskHandler", r.Method, http.MethodDelete)
		return
	}
	id, err := parseTaskID(r)
	if err != nil {
		taskError(w, http.StatusBadRequest, err.Error())
		return
	}
	deleted, err := s.st.DeleteTask(id)
	if err != nil {
		slog.Error("Server.deleteTaskHandler: failed to delete task", "error", err, "id", id)
		taskError(w, http.StatusInternalServerError, "Failed to delete task")
		return
	}
	if !deleted {
		taskError(w, http.StatusNotFound, models.ErrTaskNotFound.Error())
		return
	}
	slog.Info("Server.deleteTaskHandler: task deleted", "id", id)
	writeJSONResponse(w, http.StatusOK, models.TaskMessage{Message: "Task deleted successfully"})
}

func (s *Server) editTaskHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.editTaskHandler: processing request", "method", r.Method)
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "Server.editTaskHandler", r.Method, http.MethodPost)
		return
	}
	var req models.TaskEditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.editTaskHandler: failed to decode JSON", "error", err)
		taskError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}
	if err := req.Validate(); err != nil {
		taskError(w, http.StatusBadRequest, err.Error())
		return
	}

	matches, err := s.st.FindTasksByDescription(req.OldDescription)
	if err != nil {
		slog.Error("Server.editTaskHandler: lookup failed", "error", err)
		taskError(w, http.StatusInternalServerError, "Failed to edit task")
		return
	}
	switch len(matches) {
	case 0:
		taskError(w, http.StatusNotFound, models.ErrTaskNotFound.Error())
		return
	case 1:
	default:
		slog.Warn("Server.editTaskHandler: ambiguous description", "matches", len(matches))
		taskError(w, http.StatusConflict, models.ErrAmbiguousDescription.Error())
		return
	}

	task, err := s.st.UpdateTaskDescription(matches[0].ID, req.NewDescription)
	if err != nil {
		slog.Error("Server.editTaskHandler: update failed", "error", err, "id", matches[0].ID)
		taskError(w, http.StatusInternalServerError, "Failed to edit task")
		return
	}
	if task == nil {
		// Deleted between lookup and update.
		taskError(w, http.StatusNotFound, models.ErrTaskNotFound.Error())
		return
	}
	slog.Info("Server.editTaskHandler: task edited", "id", task.ID)
	writeJSONResponse(w, http.StatusOK, task)
}

func (s *Server) orderTaskHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.orderTaskHandler: processing request", "method", r.Method)
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "Server.orderTaskHandler", r.Method, http.MethodPost)
		return
	}
	var req models.TaskOrderRequest
	// An empty body is the same as an empty list.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		slog.Warn("Server.orderTaskHandler: failed to decode JSON", "error", err)
		taskError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}
	if len(req.IDs) == 0 {
		writeJSONResponse(w, http.StatusOK, models.TaskMessage{Message: "needs implemented"})
		return
	}

	if err := s.st.ReorderTasks(req.IDs); err != nil {
		if errors.Is(err, models.ErrTaskNotFound) {
			taskError(w, http.StatusNotFound, err.Error())
			return
		}
		slog.Error("Server.orderTaskHandler: reorder failed", "error", err)
		taskError(w, http.StatusInternalServerError, "Failed to reorder tasks")
		return
	}
	tasks, err := s.st.ListTasks()
	if err != nil {
		slog.Error("Server.orderTaskHandler: failed to list tasks", "error", err)
		taskError(w, http.StatusInternalServerError, "Failed to retrieve tasks")
		return
	}
	slog.Info("Server.orderTaskHandler: tasks reordered", "count", len(req.IDs))
	writeJSONResponse(w, http.StatusOK, tasks)
}
