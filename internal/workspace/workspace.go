// Package workspace owns the private staging directory for one
// pipeline run: identifier generation, collision-free creation, and
// teardown.
package workspace

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// ErrCollision is returned when identifier regeneration exhausts its
// attempt bound without finding an unused directory name.
var ErrCollision = errors.New("workspace: could not find unused staging directory name")

const (
	idLength  = 8
	idCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Session is one pipeline run's identity and staging directory.
type Session struct {
	ID  string
	Dir string
}

// Manager creates and removes staging directories under the platform
// temp root.
type Manager struct {
	logger      *zap.Logger
	tempRoot    string
	maxAttempts int

	stat      func(string) (os.FileInfo, error)
	mkdir     func(string, os.FileMode) error
	removeAll func(string) error
	randInt   func(int) int
}

// NewManager builds a manager using real OS dependencies.
func NewManager(logger *zap.Logger, maxAttempts int) *Manager {
	return &Manager{
		logger:      logger,
		tempRoot:    os.TempDir(),
		maxAttempts: maxAttempts,
		stat:        os.Stat,
		mkdir:       os.Mkdir,
		removeAll:   os.RemoveAll,
		randInt:     rand.Intn,
	}
}

// Create generates a session identifier, regenerating on directory
// name collision up to the attempt bound, and creates the staging
// directory.
func (m *Manager) Create() (Session, error) {
	for attempt := 0; attempt < m.maxAttempts; attempt++ {
		id := m.randomID()
		dir := filepath.Join(m.tempRoot, ".temp-"+id)

		if _, err := m.stat(dir); err == nil {
			m.logger.Debug("staging directory name collision, regenerating",
				zap.String("dir", dir))
			continue
		} else if !errors.Is(err, os.ErrNotExist) {
			return Session{}, fmt.Errorf("workspace: stat %s: %w", dir, err)
		}

		if err := m.mkdir(dir, 0o755); err != nil {
			if errors.Is(err, os.ErrExist) {
				continue
			}
			return Session{}, fmt.Errorf("workspace: create %s: %w", dir, err)
		}

		m.logger.Info("using temporary directory", zap.String("dir", dir))
		return Session{ID: id, Dir: dir}, nil
	}

	return Session{}, ErrCollision
}

// Teardown recursively removes the staging directory. Safe to call on
// an empty session.
func (m *Manager) Teardown(session Session) error {
	if session.Dir == "" {
		return nil
	}

	m.logger.Info("cleaning temporary directory", zap.String("dir", session.Dir))
	if err := m.removeAll(session.Dir); err != nil {
		return fmt.Errorf("workspace: remove %s: %w", session.Dir, err)
	}
	return nil
}

// randomID returns a fixed-length alphanumeric token.
func (m *Manager) randomID() string {
	buf := make([]byte, idLength)
	for i := range buf {
		buf[i] = idCharset[m.randInt(len(idCharset))]
	}
	return string(buf)
}

// NewManagerForTests builds a manager with injectable dependencies.
func NewManagerForTests(
	logger *zap.Logger,
	tempRoot string,
	maxAttempts int,
	stat func(string) (os.FileInfo, error),
	mkdir func(string, os.FileMode) error,
	removeAll func(string) error,
	randInt func(int) int,
) *Manager {
	return &Manager{
		logger:      logger,
		tempRoot:    tempRoot,
		maxAttempts: maxAttempts,
		stat:        stat,
		mkdir:       mkdir,
		removeAll:   removeAll,
		randInt:     randInt,
	}
}
