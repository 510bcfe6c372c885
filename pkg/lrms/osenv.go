package lrms

import (
	"os"
	"os/exec"
)

// OSEnvironment implements Environment against the real process
// environment and filesystem, the concrete collaborator main wires in
// at startup (spec.md §4.1; every variant's Detector is tested instead
// against the fakeEnv double in this package's tests).
type OSEnvironment struct{}

func (OSEnvironment) Getenv(key string) string { return os.Getenv(key) }

func (OSEnvironment) ReadFile(path string) ([]byte, error) { return os.ReadFile(path) }

func (OSEnvironment) Run(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).Output()
}
