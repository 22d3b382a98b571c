// Package session holds the explicit user identity the client acts as.
//
// The identity is created once and persisted; later runs read it back and
// never regenerate it. A corrupt identity file is reported, not replaced.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidSession is returned when the session file exists but does not
// contain a usable identity.
var ErrInvalidSession = errors.New("invalid session file")

// Session identifies the backend user all operations are scoped to.
type Session struct {
	UserID  string
	Path    string // file the identity was loaded from (empty for in-memory sessions)
	Created bool   // true if this call created the identity
}

// New returns an in-memory session for a known user id.
func New(userID string) (*Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: empty user id", ErrInvalidSession)
	}
	return &Session{UserID: userID}, nil
}

// Load reads the identity stored at path, creating and persisting a new one
// if the file does not exist.
func Load(path string) (*Session, error) {
	if path == "" {
		return nil, errors.New("session path is required")
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		id := strings.TrimSpace(string(data))
		if _, perr := uuid.Parse(id); perr != nil {
			return nil, fmt.Errorf("%w %s: %v", ErrInvalidSession, path, perr)
		}
		return &Session{UserID: id, Path: path}, nil
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	// O_EXCL so two processes starting at once cannot both mint an identity.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if os.IsExist(err) {
			return Load(path)
		}
		return nil, fmt.Errorf("failed to create session file: %w", err)
	}
	if _, err := f.WriteString(id + "\n"); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write session file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to write session file: %w", err)
	}

	return &Session{UserID: id, Path: path, Created: true}, nil
}
