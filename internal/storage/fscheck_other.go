//go:build !darwin && !linux

package storage

// Detection is best effort; platforms without statfs support pass the check.
func detectFilesystemType(path string) (string, error) {
	return "", nil
}
