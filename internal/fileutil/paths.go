package fileutil

import "path/filepath"

// RiftSubdir builds a path to a subdirectory within the daemon's state
// directory, such as the per-project state directory. The pid file sits at
// the state directory root (see PIDPath).
func RiftSubdir(stateDir, subdir string) string {
	return filepath.Join(stateDir, subdir)
}

// ProjectStatePath returns the state file path for one tracked project,
// named by its project id to avoid collisions between same-named projects
// tracked from different Coordinators.
func ProjectStatePath(stateDir, projectID string) string {
	return filepath.Join(RiftSubdir(stateDir, "projects"), projectID+".json")
}

// PIDPath returns the daemon's PID file path.
func PIDPath(stateDir string) string {
	return filepath.Join(stateDir, "riftd.pid")
}
