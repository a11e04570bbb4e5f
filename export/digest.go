package export

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
)

// Snapshot files carry a .digest sidecar with the SHA256
// hex digest of their content. A missing or mismatched
// sidecar marks the snapshot as corrupt.

// calculateDigest computes the SHA256 hex digest of the
// file at path. Returns empty string with no error if the
// file does not exist.
func calculateDigest(path string) (result string, retErr error) {
	const errCtx = "calculating digest"

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return "", nil
	}

	fi, err := os.Open(path) //nolint:gosec // path is store-owned
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	defer func() {
		if closeErr := fi.Close(); closeErr != nil && retErr == nil {
			retErr = fmt.Errorf("%s: %w", errCtx, closeErr)
		}
	}()

	ha := sha256.New()

	if _, err := io.Copy(ha, fi); err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	return hex.EncodeToString(ha.Sum(nil)), nil
}

// storedDigest reads the digest recorded in the sidecar
// file. Returns empty string with no error if the sidecar
// does not exist.
func storedDigest(path string) (string, error) {
	const errCtx = "reading stored digest"

	dp := path + ".digest"

	if _, err := os.Stat(dp); errors.Is(err, os.ErrNotExist) {
		return "", nil
	}

	digest, err := os.ReadFile(dp) //nolint:gosec // path is store-owned
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	return string(digest), nil
}

// verifyDigest compares the calculated digest of the file
// against its stored sidecar digest.
func verifyDigest(path string) (bool, error) {
	const errCtx = "verifying digest"

	calc, err := calculateDigest(path)
	if err != nil {
		return false, fmt.Errorf("%s: %w", errCtx, err)
	}

	if calc == "" {
		return false, nil
	}

	stored, err := storedDigest(path)
	if err != nil {
		return false, fmt.Errorf("%s: %w", errCtx, err)
	}

	return calc == stored, nil
}

// saveDigest calculates the digest of a file and writes
// it to its .digest sidecar.
func saveDigest(path string) error {
	const errCtx = "saving digest"

	digest, err := calculateDigest(path)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	dp := path + ".digest"

	if err := os.WriteFile(dp, []byte(digest), 0o600); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}
