package config

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

var ErrFileNotFound = errors.New("configuration file not found")

// SearchPaths returns the directories a relative configuration file name is looked up in.
func SearchPaths() []string {
	out := []string{}
	if wd, err := os.Getwd(); err == nil {
		out = append(out, wd)
	}
	if home, err := os.UserHomeDir(); err == nil {
		out = append(out, filepath.Join(home, ".grid"))
	}
	return append(out, "/etc/grid")
}

// LookupFile resolves a configuration file name. The name is tried as given, then
// relative to every SearchPaths directory.
func LookupFile(fs afero.Fs, name string) (string, error) {
	if ok, _ := afero.Exists(fs, name); ok {
		return name, nil
	}
	if !filepath.IsAbs(name) {
		for _, dir := range SearchPaths() {
			candidate := filepath.Join(dir, name)
			if ok, _ := afero.Exists(fs, candidate); ok {
				return candidate, nil
			}
		}
	}
	return "", errors.Wrapf(ErrFileNotFound, "%q", name)
}
