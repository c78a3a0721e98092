// Package session persists per-target scraping state between runs:
// verified session cookies obtained from challenge resolution, pagination
// progress per keyword, and the set of record URLs already collected so a
// resumed run can skip duplicates.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"adscraper/pkg/logger"
)

// Session is the persisted state for one target
type Session struct {
	Target        string            `json:"target"`
	Host          string            `json:"host"`
	Cookies       string            `json:"cookies"`
	Tokens        map[string]string `json:"tokens,omitempty"`
	LastPage      map[string]int    `json:"last_page"` // keyword -> last completed page
	SeenURLs      map[string]bool   `json:"seen_urls"`
	TotalRecords  int               `json:"total_records"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	Version       int               `json:"version"`
}

// Manager handles session persistence for one target
type Manager struct {
	sessionPath string
	logger      logger.Logger
}

// NewManager creates a session manager storing state under the platform
// data directory
func NewManager(target string) (*Manager, error) {
	dataDir, err := getDataDirectory()
	if err != nil {
		return nil, fmt.Errorf("failed to get data directory: %w", err)
	}

	sessionsDir := filepath.Join(dataDir, "sessions")
	if err := os.MkdirAll(sessionsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}

	return &Manager{
		sessionPath: filepath.Join(sessionsDir, fmt.Sprintf("%s.session.json", target)),
		logger:      logger.GetLogger(),
	}, nil
}

// NewManagerAt creates a session manager with an explicit file path
func NewManagerAt(path string) *Manager {
	return &Manager{
		sessionPath: path,
		logger:      logger.GetLogger(),
	}
}

// Create initialises and saves a fresh session for the target
func (m *Manager) Create(target, host string) (*Session, error) {
	session := &Session{
		Target:    target,
		Host:      host,
		LastPage:  make(map[string]int),
		SeenURLs:  make(map[string]bool),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
		Version:   1,
	}

	if err := m.Save(session); err != nil {
		return nil, fmt.Errorf("failed to save initial session: %w", err)
	}

	m.logger.InfoWithFields("session created", map[string]interface{}{
		"target": target,
		"path":   m.sessionPath,
	})

	return session, nil
}

// Load reads an existing session. It returns (nil, nil) when no session
// file exists.
func (m *Manager) Load() (*Session, error) {
	file, err := os.Open(m.sessionPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open session file: %w", err)
	}
	defer file.Close()

	var session Session
	if err := json.NewDecoder(file).Decode(&session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	if session.LastPage == nil {
		session.LastPage = make(map[string]int)
	}
	if session.SeenURLs == nil {
		session.SeenURLs = make(map[string]bool)
	}

	m.logger.InfoWithFields("session loaded", map[string]interface{}{
		"target":        session.Target,
		"total_records": session.TotalRecords,
		"has_cookies":   session.Cookies != "",
		"updated_at":    session.UpdatedAt,
	})

	return &session, nil
}

// Save writes the session to disk atomically
func (m *Manager) Save(session *Session) error {
	session.UpdatedAt = time.Now()

	tempPath := m.sessionPath + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary session file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(session); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync session file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close session file: %w", err)
	}

	if err := os.Rename(tempPath, m.sessionPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace session file: %w", err)
	}

	m.logger.DebugWithFields("session saved", map[string]interface{}{
		"target":        session.Target,
		"total_records": session.TotalRecords,
	})

	return nil
}

// Delete removes the session file
func (m *Manager) Delete() error {
	if err := os.Remove(m.sessionPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Exists reports whether a session file is present
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.sessionPath)
	return err == nil
}

// UpdateProgress records the last completed page for a keyword
func (m *Manager) UpdateProgress(session *Session, keyword string, page int) error {
	session.LastPage[keyword] = page
	return m.Save(session)
}

// UpdateCredentials stores credentials obtained from challenge resolution
func (m *Manager) UpdateCredentials(session *Session, cookies string, tokens map[string]string) error {
	session.Cookies = cookies
	if len(tokens) > 0 {
		if session.Tokens == nil {
			session.Tokens = make(map[string]string)
		}
		for k, v := range tokens {
			session.Tokens[k] = v
		}
	}
	return m.Save(session)
}

// RecordSeen marks a record URL as collected and returns false when it
// was already present
func (s *Session) RecordSeen(url string) bool {
	if url == "" {
		return true
	}
	if s.SeenURLs[url] {
		return false
	}
	s.SeenURLs[url] = true
	s.TotalRecords++
	return true
}

// ResumePage returns the page a resumed run should start from for a keyword
func (s *Session) ResumePage(keyword string) int {
	return s.LastPage[keyword] + 1
}

// getDataDirectory returns the platform data directory for adscraper
func getDataDirectory() (string, error) {
	var baseDir string

	switch runtime.GOOS {
	case "windows":
		baseDir = os.Getenv("APPDATA")
		if baseDir == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		baseDir = filepath.Join(home, "Library", "Application Support")
	default:
		baseDir = os.Getenv("XDG_DATA_HOME")
		if baseDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			baseDir = filepath.Join(home, ".local", "share")
		}
	}

	return filepath.Join(baseDir, "adscraper"), nil
}
