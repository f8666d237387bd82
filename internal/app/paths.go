package app

import (
	"os"
	"path/filepath"

	"github.com/corey/hilite/internal/adapters/socket"
)

// Paths holds all resolved filesystem paths for the .hilite/ project directory.
type Paths struct {
	Root string // .hilite/
	DB   string // .hilite/hilite.db

	LogDir    string // .hilite/log/
	DaemonLog string // .hilite/log/daemon.log

	RunDir   string // .hilite/run/
	PIDFile  string // .hilite/run/daemon.pid
	PortFile string // .hilite/run/http.port

	GrammarsDir string // .hilite/grammars/

	Socket string // /tmp/hilite-{hash}.sock
}

// NewPaths constructs all resolved paths from a project root directory.
func NewPaths(projectRoot string) *Paths {
	root := filepath.Join(projectRoot, ".hilite")
	return &Paths{
		Root: root,
		DB:   filepath.Join(root, "hilite.db"),

		LogDir:    filepath.Join(root, "log"),
		DaemonLog: filepath.Join(root, "log", "daemon.log"),

		RunDir:   filepath.Join(root, "run"),
		PIDFile:  filepath.Join(root, "run", "daemon.pid"),
		PortFile: filepath.Join(root, "run", "http.port"),

		GrammarsDir: filepath.Join(root, "grammars"),

		Socket: socket.SocketPath(projectRoot),
	}
}

// EnsureDirs creates all subdirectories under .hilite/. Idempotent.
func (p *Paths) EnsureDirs() error {
	for _, d := range []string{p.Root, p.LogDir, p.RunDir, p.GrammarsDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return err
		}
	}
	return nil
}

// CleanEphemeral removes ephemeral runtime files (PID file and port file).
// Called on clean daemon shutdown.
func (p *Paths) CleanEphemeral() {
	os.Remove(p.PIDFile)
	os.Remove(p.PortFile)
}
