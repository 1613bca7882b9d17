package fetch

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"lukechampine.com/blake3"

	"buzzy/internal/usererr"
)

// Digests are the expected checksums of a download. Empty fields are not
// checked.
type Digests struct {
	MD5  string
	SHA1 string
}

// hashString is the cache key of a string.
func hashString(s string) string {
	h := blake3.New(32, nil)
	h.Write([]byte(s))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// FileHash returns the BLAKE3 digest of a file.
func FileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := blake3.New(32, nil)
	if _, err := io.CopyBuffer(h, f, make([]byte, 64*1024)); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// Verify checks path against want.
func Verify(path string, want Digests) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sums := map[string]hash.Hash{}
	var writers []io.Writer
	if want.MD5 != "" {
		sums["md5"] = md5.New()
		writers = append(writers, sums["md5"])
	}
	if want.SHA1 != "" {
		sums["sha1"] = sha1.New()
		writers = append(writers, sums["sha1"])
	}
	if len(writers) == 0 {
		return nil
	}
	if _, err := io.Copy(io.MultiWriter(writers...), f); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	for _, algo := range []string{"md5", "sha1"} {
		h, ok := sums[algo]
		if !ok {
			continue
		}
		expected := want.MD5
		if algo == "sha1" {
			expected = want.SHA1
		}
		got := hex.EncodeToString(h.Sum(nil))
		if !strings.EqualFold(got, expected) {
			return usererr.WithDetail(
				fmt.Sprintf("%s checksum mismatch for %s", algo, path),
				fmt.Sprintf("expected %s\ngot      %s", expected, got))
		}
	}
	return nil
}

// sidecar holds the BLAKE3 digest of a verified download together with the
// digests it was verified against, so later runs with the same expected
// digests can skip the slower check.
func sidecar(path string) string { return path + ".b3" }

func sidecarLine(sum string, want Digests) string {
	return fmt.Sprintf("%s md5=%s sha1=%s", sum, strings.ToLower(want.MD5), strings.ToLower(want.SHA1))
}

func writeSidecar(path string, want Digests) error {
	sum, err := FileHash(path)
	if err != nil {
		return err
	}
	return os.WriteFile(sidecar(path), []byte(sidecarLine(sum, want)+"\n"), 0o644)
}

// verifiedBefore reports whether path still matches its sidecar and was
// verified against want.
func verifiedBefore(path string, want Digests) bool {
	data, err := os.ReadFile(sidecar(path))
	if err != nil {
		return false
	}
	sum, err := FileHash(path)
	return err == nil && strings.TrimSpace(string(data)) == sidecarLine(sum, want)
}
