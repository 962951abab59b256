package deploy

import (
	"os"

	"github.com/core-tools/hsu-deploy/pkg/errors"
)

// resetPeersFile removes state left by a previous registry so every run starts
// with an empty peer list. A missing file is fine.
func resetPeersFile(path string) error {
	err := os.Remove(path)
	if err == nil || os.IsNotExist(err) {
		return nil
	}
	return errors.NewIOError("failed to remove peers file", err).WithContext("path", path)
}
