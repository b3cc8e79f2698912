// Package status describes the watch session for display.
//
// The daemon writes a JSON status file on every transition so `temme status`
// and editor status bars can read it without a round-trip. The LSP host sends
// the same payload as a notification.
package status

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// StatusFile is the filename within the .temme directory where status JSON is written.
const StatusFile = "status.json"

// Status is the watch session state.
type Status string

const (
	Ready    Status = "ready"
	Running  Status = "running"
	Watching Status = "watching"
)

// Data is the status payload.
type Data struct {
	Status   Status    `json:"status"`
	Document string    `json:"document,omitempty"`
	URL      string    `json:"url,omitempty"`
	Session  string    `json:"session,omitempty"`
	Output   string    `json:"output,omitempty"`
	Since    time.Time `json:"since"`
}

// Label renders the status-bar text. A ready session is only worth showing
// while a recognized document is active; otherwise the label is empty.
func Label(d Data, activeRecognized bool) string {
	switch d.Status {
	case Running:
		return "temme: running"
	case Watching:
		if d.URL != "" {
			return "temme: watching " + d.URL
		}
		return "temme: watching"
	default:
		if activeRecognized {
			return "temme: ready"
		}
		return ""
	}
}

// WriteJSON writes the status data as JSON to a file. The write goes through
// a temp file so readers never see a partial payload.
func WriteJSON(path string, data Data) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".status-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// ReadJSON loads a status file written by WriteJSON.
func ReadJSON(path string) (Data, error) {
	var d Data
	b, err := os.ReadFile(path)
	if err != nil {
		return d, err
	}
	err = json.Unmarshal(b, &d)
	return d, err
}
