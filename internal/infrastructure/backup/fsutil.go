package backup

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/doeshing/safecmd/internal/domain"
)

// copyFile copies src to dst, fsyncs the destination, and returns the
// payload's SHA-256 and size.
func copyFile(src, dst string) (string, int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", 0, err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), domain.DirectoryPermissions); err != nil {
		return "", 0, err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return "", 0, err
	}
	defer out.Close()

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(out, hasher), in)
	if err != nil {
		return "", 0, err
	}
	if err := out.Sync(); err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(hasher.Sum(nil)), size, nil
}

// copyDir snapshots a directory tree under dst and returns a digest over the
// sorted relative paths and per-file hashes.
func copyDir(src, dst string) (string, int64, error) {
	digest := sha256.New()
	var total int64

	var rels []string
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if d.IsDir() {
			return os.MkdirAll(filepath.Join(dst, rel), domain.DirectoryPermissions)
		}
		rels = append(rels, rel)
		return nil
	})
	if err != nil {
		return "", 0, err
	}

	sort.Strings(rels)
	for _, rel := range rels {
		sum, size, err := copyFile(filepath.Join(src, rel), filepath.Join(dst, rel))
		if err != nil {
			return "", 0, err
		}
		total += size
		fmt.Fprintf(digest, "%s:%s\n", rel, sum)
	}
	return hex.EncodeToString(digest.Sum(nil)), total, nil
}

// restoreDir copies a directory payload back to its original location.
func restoreDir(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, domain.DirectoryPermissions)
		}
		_, _, err = copyFile(path, target)
		return err
	})
}

// hashResource computes the same digest Snapshot records, so restores can
// detect drift between backup time and rollback time.
func hashResource(path string) (string, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return hashDir(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func hashDir(root string) (string, error) {
	digest := sha256.New()
	var rels []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rels = append(rels, rel)
		return nil
	})
	if err != nil {
		return "", err
	}
	sort.Strings(rels)
	for _, rel := range rels {
		sum, err := hashResource(filepath.Join(root, rel))
		if err != nil {
			return "", err
		}
		fmt.Fprintf(digest, "%s:%s\n", rel, sum)
	}
	return hex.EncodeToString(digest.Sum(nil)), nil
}

// writeFileSync writes data and fsyncs before returning.
func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
