package update

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/openvectors/vecimport/internal/config"
)

// DefaultCheckInterval is how often the CLI checks for updates in the
// background.
const DefaultCheckInterval = 24 * time.Hour

// State tracks update history and pending updates across runs. It is
// persisted as JSON under the config directory.
type State struct {
	CurrentVersion  string    `json:"current_version"`
	PreviousVersion string    `json:"previous_version,omitempty"`
	AvailableUpdate string    `json:"available_update,omitempty"`
	LastCheck       time.Time `json:"last_check"`
	LastUpdate      time.Time `json:"last_update,omitempty"`
	AutoCheck       bool      `json:"auto_check"`
}

// UpdateDir returns the directory used to stage downloads and keep the
// previous binary.
func UpdateDir() string {
	return filepath.Join(config.Dir(), "update")
}

// EnsureUpdateDir creates the update directory if needed.
func EnsureUpdateDir() error {
	return os.MkdirAll(UpdateDir(), 0755)
}

func stateFilePath() string {
	return filepath.Join(UpdateDir(), "state.json")
}

// PendingBinaryPath is where a downloaded binary waits before being applied.
func PendingBinaryPath() string {
	name := "vecimport.pending"
	if runtime.GOOS == "windows" {
		name = "vecimport.pending.exe"
	}
	return filepath.Join(UpdateDir(), name)
}

// PreviousBinaryPath is where the replaced binary is kept for rollback.
func PreviousBinaryPath() string {
	name := "vecimport.previous"
	if runtime.GOOS == "windows" {
		name = "vecimport.previous.exe"
	}
	return filepath.Join(UpdateDir(), name)
}

// LoadState reads the persisted update state, returning defaults when no
// state file exists yet.
func LoadState(currentVersion string) (*State, error) {
	data, err := os.ReadFile(stateFilePath())
	if os.IsNotExist(err) {
		return &State{CurrentVersion: currentVersion, AutoCheck: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read update state: %w", err)
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse update state: %w", err)
	}
	s.CurrentVersion = currentVersion
	return &s, nil
}

// Save persists the state to disk.
func (s *State) Save() error {
	if err := EnsureUpdateDir(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(stateFilePath(), data, 0644)
}

// ShouldCheck reports whether enough time has passed since the last
// background check.
func (s *State) ShouldCheck() bool {
	if !s.AutoCheck {
		return false
	}
	return time.Since(s.LastCheck) >= DefaultCheckInterval
}

// RecordCheck stores the result of an update check.
func (s *State) RecordCheck(available string) {
	s.LastCheck = time.Now()
	s.AvailableUpdate = available
}

// RecordUpdate stores a completed update, remembering the old version for
// rollback.
func (s *State) RecordUpdate(newVersion string) {
	s.PreviousVersion = s.CurrentVersion
	s.CurrentVersion = newVersion
	s.AvailableUpdate = ""
	s.LastUpdate = time.Now()
}
