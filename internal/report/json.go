// Package report writes run results to files: JSON, Locust-style CSV and
// a standalone HTML page.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/swaranjalilamkane/Scalable-Ride-Booking-System/internal/engine"
)

// WriteJSON writes result as indented JSON.
func WriteJSON(w io.Writer, result *engine.TestResult) error {
	if result == nil {
		return fmt.Errorf("result cannot be nil")
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	return nil
}

// SaveJSON writes result to path as JSON.
func SaveJSON(result *engine.TestResult, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create JSON report: %w", err)
	}
	if err := WriteJSON(f, result); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
