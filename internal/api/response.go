package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/LaunchPipe/internal/models"
)

// Fallback bodies written when a response cannot be marshaled. The task
// routes speak a bare {"error": ...} shape, everything else the envelope.
var (
	fallbackEnvelopeResponse []byte
	fallbackTaskResponse     []byte
)

func init() {
	var err error
	fallbackEnvelopeResponse, err = json.Marshal(models.Error("Internal server error"))
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal fallback error response at startup: %v", err))
	}
	fallbackTaskResponse, err = json.Marshal(models.TaskError{Error: "Internal server error"})
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal fallback task error at startup: %v", err))
	}
}

// fallbackFor picks the error body matching the shape the caller meant to send.
func fallbackFor(response interface{}) []byte {
	switch response.(type) {
	case models.APIResponse, *models.APIResponse:
		return fallbackEnvelopeResponse
	default:
		return fallbackTaskResponse
	}
}

// writeJSONResponse marshals response before touching headers so a marshal
// failure can still become a clean 500.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "error", err, "type", fmt.Sprintf("%T", response))
		jsonData = fallbackFor(response)
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write(jsonData); writeErr != nil {
		slog.Error("Server.writeJSONResponse: failed to write JSON response", "error", writeErr)
	}
}

// taskError writes the task API's {"error": message} body.
func taskError(w http.ResponseWriter, statusCode int, message string) {
	writeJSONResponse(w, statusCode, models.TaskError{Error: message})
}

func methodNotAllowed(w http.ResponseWriter, handler string, method string, allowed string) {
	w.Header().Set("Allow", allowed)
	slog.Warn(handler+": method not allowed", "method", method)
	w.WriteHeader(http.StatusMethodNotAllowed)
}
