package archive

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// RestoreParams holds all inputs needed to restore an archive.
type RestoreParams struct {
	ArchivePath  string // Path to the .tar.gz archive
	AccountsDest string // Destination path for the account database
	DenyDest     string // Destination path for the deny list (empty = skip)
	ConfDest     string // Destination path for the config file (empty = skip)
	// ReplaceConf overwrites an existing config file. Without it the
	// current config is kept and a warning recorded.
	ReplaceConf bool
}

// RestoreResult summarizes a completed restore operation.
type RestoreResult struct {
	Manifest      Manifest
	FilesRestored int
	Warnings      []string
}

// Restore extracts and validates an archive, then copies its files to
// their destinations. Nothing is written unless every checksum matches.
func Restore(p RestoreParams) (*RestoreResult, error) {
	tmpDir, err := os.MkdirTemp("", "sourcemud-restore-*")
	if err != nil {
		return nil, fmt.Errorf("restore: create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	if err := extract(p.ArchivePath, tmpDir); err != nil {
		return nil, fmt.Errorf("restore: extract: %w", err)
	}

	data, err := os.ReadFile(filepath.Join(tmpDir, manifestName))
	if err != nil {
		return nil, fmt.Errorf("restore: %s not found in archive", manifestName)
	}
	result := &RestoreResult{}
	if err := json.Unmarshal(data, &result.Manifest); err != nil {
		return nil, fmt.Errorf("restore: parse manifest: %w", err)
	}

	for name, entry := range result.Manifest.Files {
		ok, err := validateChecksum(filepath.Join(tmpDir, filepath.FromSlash(name)), entry.SHA256)
		if err != nil {
			return nil, fmt.Errorf("restore: checksum %s: %w", name, err)
		}
		if !ok {
			return nil, fmt.Errorf("restore: checksum mismatch for %s", name)
		}
	}

	for name, entry := range result.Manifest.Files {
		src := filepath.Join(tmpDir, filepath.FromSlash(name))
		var dest string
		switch entry.Type {
		case "accounts":
			dest = p.AccountsDest
		case "deny":
			dest = p.DenyDest
		case "conf":
			dest = p.ConfDest
			if dest != "" && exists(dest) && !p.ReplaceConf {
				result.Warnings = append(result.Warnings, "kept current config: "+dest)
				continue
			}
		}
		if dest == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return nil, fmt.Errorf("restore: create dir for %s: %w", dest, err)
		}
		if err := copyFile(src, dest); err != nil {
			return nil, fmt.Errorf("restore: copy %s: %w", name, err)
		}
		result.FilesRestored++
	}
	return result, nil
}

func extract(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gr.Close()

	root := filepath.Clean(destDir) + string(filepath.Separator)
	tr := tar.NewReader(gr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		// Reject entries that would land outside destDir.
		target := filepath.Join(destDir, filepath.FromSlash(hdr.Name))
		if !strings.HasPrefix(target, root) {
			return fmt.Errorf("invalid archive entry: %s", hdr.Name)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		out, err := os.Create(target)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return err
		}
		if err := out.Close(); err != nil {
			return err
		}
	}
}

// validateChecksum checks a file's SHA-256 against the expected hex string.
func validateChecksum(path, expected string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return false, err
	}
	return hex.EncodeToString(h.Sum(nil)) == expected, nil
}

// copyFile copies a file from src to dst.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
