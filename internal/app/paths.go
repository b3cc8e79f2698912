package app

import (
	"os"
	"path/filepath"

	"github.com/corey/temmekit/internal/config"
	"github.com/corey/temmekit/internal/domain/status"
)

// Paths holds all resolved filesystem paths for the .temme/ project directory.
type Paths struct {
	Root   string // .temme/
	DB     string // .temme/temme.db
	Status string // .temme/status.json
	Config string // .temme/config.toml

	LogDir string // .temme/log/
	Log    string // .temme/log/temme.log

	RunDir  string // .temme/run/
	PIDFile string // .temme/run/daemon.pid
}

// NewPaths constructs all resolved paths from a project root directory.
func NewPaths(projectRoot string) *Paths {
	root := filepath.Join(projectRoot, ".temme")
	return &Paths{
		Root:   root,
		DB:     filepath.Join(root, "temme.db"),
		Status: filepath.Join(root, status.StatusFile),
		Config: config.ProjectPath(projectRoot),

		LogDir: filepath.Join(root, "log"),
		Log:    filepath.Join(root, "log", "temme.log"),

		RunDir:  filepath.Join(root, "run"),
		PIDFile: filepath.Join(root, "run", "daemon.pid"),
	}
}

// EnsureDirs creates all subdirectories under .temme/. Idempotent.
func (p *Paths) EnsureDirs() error {
	for _, d := range []string{p.Root, p.LogDir, p.RunDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return err
		}
	}
	return nil
}

// CleanEphemeral removes runtime files that only make sense while the daemon
// runs. Called on clean daemon shutdown.
func (p *Paths) CleanEphemeral() {
	os.Remove(p.PIDFile)
}
