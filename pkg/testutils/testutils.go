package testutils

import (
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
)

// CreateTestDBPath creates a temporary SQLite database file path for testing
func CreateTestDBPath(t *testing.T) string {
	t.Helper()

	// Create temporary directory
	tmpDir := t.TempDir()
	return filepath.Join(tmpDir, "test.db")
}

// AssertNoError is a helper to check for no error
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
}

// AssertError is a helper to check for an error whose message contains expectedMsg
func AssertError(t *testing.T, err error, expectedMsg string) {
	t.Helper()
	if err == nil {
		t.Fatalf("Expected error containing '%s', got nil", expectedMsg)
	}
	if !strings.Contains(err.Error(), expectedMsg) {
		t.Fatalf("Expected error containing '%s', got '%v'", expectedMsg, err)
	}
}

// AssertEqual checks if two values are equal
func AssertEqual(t *testing.T, got, want interface{}) {
	t.Helper()
	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

// AssertNotEqual checks if two values are not equal
func AssertNotEqual(t *testing.T, got, notWant interface{}) {
	t.Helper()
	if got == notWant {
		t.Errorf("got %v, expected it to be different", got)
	}
}

// AssertStatus checks the status code of a recorded response
func AssertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("status = %d, want %d (body: %s)", rr.Code, want, rr.Body.String())
	}
}
