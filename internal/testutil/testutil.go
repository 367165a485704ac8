// Package testutil provides common test utilities and helpers for LaunchPipe tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/BTreeMap/LaunchPipe/internal/api"
	"github.com/BTreeMap/LaunchPipe/internal/flow"
	"github.com/BTreeMap/LaunchPipe/internal/models"
	"github.com/BTreeMap/LaunchPipe/internal/page"
	"github.com/BTreeMap/LaunchPipe/internal/store"
)

// TestToken is the provisioning token handed out by NewTestServer.
const TestToken = "test-token"

// TestingT is the subset of *testing.T the helpers need.
type TestingT interface {
	Helper()
	Errorf(format string, args ...interface{})
	Error(args ...interface{})
	Fatalf(format string, args ...interface{})
	Fatal(args ...interface{})
}

// NewTestServer creates a test API server with in-memory dependencies.
func NewTestServer() *api.Server {
	return NewTestServerWithStore(store.NewInMemoryStore())
}

// NewTestServerWithStore creates a test API server over st. Pages are
// provisioned by a mock that always returns TestToken.
func NewTestServerWithStore(st store.Store) *api.Server {
	pages := page.NewManager(flow.NewMockProvisioner(TestToken), page.WithSnapshotStore(st))
	return api.NewServer(st, pages, "")
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t TestingT, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes an envelope response and validates the status field.
func AssertJSONResponse(t TestingT, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}

	return response
}

// AssertTaskError decodes a task API error body and checks its message.
func AssertTaskError(t TestingT, rr *httptest.ResponseRecorder, expected string) {
	t.Helper()
	var body models.TaskError
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode task error: %v", err)
	}
	if body.Error != expected {
		t.Errorf("expected error '%s', got '%s'", expected, body.Error)
	}
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t TestingT, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	return req
}

// CreateJSONRequest creates an HTTP request with a raw JSON body.
func CreateJSONRequest(t TestingT, method, url, jsonBody string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewBufferString(jsonBody))
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req
}

// AssertTaskCount validates the number of tasks in the store.
func AssertTaskCount(t TestingT, st store.TaskStore, expected int, context string) {
	t.Helper()
	tasks, err := st.ListTasks()
	if err != nil {
		t.Fatalf("%s: failed to list tasks: %v", context, err)
	}
	if len(tasks) != expected {
		t.Errorf("%s: expected %d tasks, got %d", context, expected, len(tasks))
	}
}

// SeedTasks creates one task per description, in order, and returns them.
// The last description ends up first in the list.
func SeedTasks(t TestingT, st store.TaskStore, descriptions ...string) []models.Task {
	t.Helper()
	tasks := make([]models.Task, 0, len(descriptions))
	for _, d := range descriptions {
		task, err := st.CreateTask(d)
		if err != nil {
			t.Fatalf("failed to seed task %q: %v", d, err)
		}
		tasks = append(tasks, task)
	}
	return tasks
}

// AssertTaskEquals compares the identifying fields of two tasks.
func AssertTaskEquals(t TestingT, expected, actual models.Task, context string) {
	t.Helper()
	if actual.ID != expected.ID ||
		actual.Description != expected.Description ||
		actual.OrderIndex != expected.OrderIndex ||
		(actual.DateCompleted == nil) != (expected.DateCompleted == nil) {
		t.Errorf("%s: tasks don't match\nexpected: %+v\nactual: %+v", context, expected, actual)
	}
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t TestingT, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t TestingT, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
