package internal

import (
	"errors"
	"testing"
	"time"
)

func TestSimpleSpinner(t *testing.T) {
	VerboseMode = false

	err := SimpleSpinner("Test operation", func() error {
		time.Sleep(100 * time.Millisecond)
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}

func TestSimpleSpinnerWithError(t *testing.T) {
	VerboseMode = false

	expectedErr := errors.New("test error")
	err := SimpleSpinner("Test operation", func() error {
		time.Sleep(100 * time.Millisecond)
		return expectedErr
	})

	if err != expectedErr {
		t.Errorf("Expected error %v, got %v", expectedErr, err)
	}
}

func TestSimpleSpinnerVerboseMode(t *testing.T) {
	VerboseMode = true
	defer func() { VerboseMode = false }()

	operationCalled := false
	err := SimpleSpinner("Test operation", func() error {
		operationCalled = true
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	if !operationCalled {
		t.Error("Operation should still be called in verbose mode")
	}
}

func TestNewSpinner(t *testing.T) {
	spinner := NewSpinner("Test message")

	if spinner.message != "Test message" {
		t.Errorf("Expected message 'Test message', got '%s'", spinner.message)
	}

	if spinner.active {
		t.Error("New spinner should not be active")
	}
}

func TestSpinnerStartStop(t *testing.T) {
	spinner := NewSpinner("Test")

	spinner.Start()
	time.Sleep(150 * time.Millisecond)
	spinner.Stop()

	if spinner.active {
		t.Error("Spinner should not be active after Stop")
	}

	// Stopping twice must be safe.
	spinner.Stop()
}

func TestSpinnerUpdateMessage(t *testing.T) {
	spinner := NewSpinner("Initial")
	spinner.UpdateMessage("Updated")

	if spinner.message != "Updated" {
		t.Errorf("Expected message 'Updated', got '%s'", spinner.message)
	}
}
