//go:build !linux

package storage

func detectFilesystem(string) (string, FSKind, error) {
	return "", FSUnknown, errUnsupportedPlatform
}
