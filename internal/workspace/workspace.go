// Package workspace manages per-request scratch files: the raw upload and
// its derived audio form. Paths are uniquely named so concurrent requests
// never collide, and Release removes both on every exit path.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/skillsenselab/transcriber/internal/logger"
)

// Workspace is the pair of scratch paths allocated for one request.
type Workspace struct {
	// ID is the request-scoped token both paths derive from.
	ID string
	// InputPath receives the raw uploaded bytes.
	InputPath string
	// AudioPath receives the extracted mono/16kHz WAV.
	AudioPath string
}

// Manager allocates and releases workspaces under a scratch directory.
type Manager struct {
	dir string
	log *logger.Logger
}

// NewManager creates a Manager rooted at dir, creating it if needed.
// An empty dir falls back to the system temp directory.
func NewManager(dir string, log *logger.Logger) (*Manager, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch dir %s: %w", dir, err)
	}
	return &Manager{dir: dir, log: log.WithComponent("workspace")}, nil
}

// Dir returns the scratch directory.
func (m *Manager) Dir() string { return m.dir }

// Acquire allocates a workspace for an upload with the given filename
// extension (e.g. ".mp4"). Neither path exists yet; callers create the files.
func (m *Manager) Acquire(ext string) *Workspace {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	id := uuid.New().String()
	return &Workspace{
		ID:        id,
		InputPath: filepath.Join(m.dir, "input-"+id+ext),
		AudioPath: filepath.Join(m.dir, "audio-"+id+".wav"),
	}
}

// Release removes both workspace paths. Missing files are fine. Removal
// failures are logged and never escalated: cleanup must not mask the
// request's primary outcome.
func (m *Manager) Release(ws *Workspace) {
	if ws == nil {
		return
	}
	for _, path := range []string{ws.InputPath, ws.AudioPath} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			m.log.Warn("failed to remove scratch file", logger.Fields(
				logger.FieldPath, path,
				logger.FieldError, err.Error(),
			))
		}
	}
}
