// Package hashing computes content hashes for job archives.
package hashing

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/octa-computer/transfer-manager/internal/constants"
)

// MD5File returns the hex MD5 of the file at path, read in large blocks.
// The render node verifies the archive against this hash after download.
func MD5File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s for hashing: %w", path, err)
	}
	defer f.Close()

	hasher := md5.New()
	buf := make([]byte, constants.HashReadSize)
	if _, err := io.CopyBuffer(hasher, f, buf); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
