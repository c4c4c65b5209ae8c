// Package archive writes and restores .tar.gz backups of the server's
// persistent state: the account database, the deny list and the config
// file, with a JSON manifest of SHA-256 checksums.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Archive member names.
const (
	AccountsName = "data/accounts.db"
	DenyName     = "data/deny"
	confPrefix   = "conf/"
	manifestName = "manifest.json"

	// timeFormat sorts lexically.
	timeFormat = "2006-01-02T15:04:05.000Z"
)

// Now is the clock used for archive names and manifests.
var Now = time.Now

// Manifest describes the contents of an archive.
type Manifest struct {
	Version   int                  `json:"version"`
	Server    string               `json:"server"`
	Timestamp string               `json:"timestamp"`
	MudName   string               `json:"mud_name"`
	Accounts  int                  `json:"accounts"`
	Files     map[string]FileEntry `json:"files"`
}

// FileEntry describes a single file within the archive.
type FileEntry struct {
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
	Type   string `json:"type"` // "accounts", "deny", "conf"
}

// Params holds all inputs needed to create an archive.
type Params struct {
	Dir      string                      // Output directory for the archive
	Server   string                      // Server version for the manifest
	MudName  string                      // MUD name for the manifest
	Accounts int                         // Number of accounts for the manifest
	Snapshot func(destPath string) error // Writes a consistent copy of the account database
	DenyFile string                      // Path to the deny list (empty or missing = skip)
	ConfPath string                      // Path to the config file (empty or missing = skip)
}

// Create writes a new archive into p.Dir and returns its path.
func Create(p Params) (string, error) {
	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return "", fmt.Errorf("archive: create dir %s: %w", p.Dir, err)
	}

	now := Now().UTC()
	archivePath := filepath.Join(p.Dir, "archive-"+now.Format("20060102-150405.000")+".tar.gz")

	manifest := Manifest{
		Version:   1,
		Server:    p.Server,
		Timestamp: now.Format(timeFormat),
		MudName:   p.MudName,
		Accounts:  p.Accounts,
		Files:     make(map[string]FileEntry),
	}

	// Stage the database snapshot outside the tar stream so its size is
	// known before the header is written.
	var staged string
	if p.Snapshot != nil {
		tmpDir, err := os.MkdirTemp("", "sourcemud-archive-*")
		if err != nil {
			return "", fmt.Errorf("archive: create temp dir: %w", err)
		}
		defer os.RemoveAll(tmpDir)
		staged = filepath.Join(tmpDir, "accounts.db")
		if err := p.Snapshot(staged); err != nil {
			return "", fmt.Errorf("archive: snapshot: %w", err)
		}
	}

	outFile, err := os.Create(archivePath)
	if err != nil {
		return "", fmt.Errorf("archive: create %s: %w", archivePath, err)
	}
	gw := gzip.NewWriter(outFile)
	tw := tar.NewWriter(gw)

	err = func() error {
		if staged != "" {
			if err := addFile(tw, &manifest, staged, AccountsName, "accounts"); err != nil {
				return err
			}
		}
		if exists(p.DenyFile) {
			if err := addFile(tw, &manifest, p.DenyFile, DenyName, "deny"); err != nil {
				return err
			}
		}
		if exists(p.ConfPath) {
			if err := addFile(tw, &manifest, p.ConfPath, confPrefix+filepath.Base(p.ConfPath), "conf"); err != nil {
				return err
			}
		}
		return writeManifest(tw, &manifest, now)
	}()
	if err == nil {
		err = tw.Close()
	}
	if err == nil {
		err = gw.Close()
	}
	if cerr := outFile.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(archivePath)
		return "", err
	}
	return archivePath, nil
}

func exists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func writeManifest(tw *tar.Writer, m *Manifest, now time.Time) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("archive: marshal manifest: %w", err)
	}
	if err := tw.WriteHeader(&tar.Header{
		Name:    manifestName,
		Size:    int64(len(data)),
		Mode:    0o644,
		ModTime: now,
	}); err != nil {
		return fmt.Errorf("archive: write manifest header: %w", err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("archive: write manifest: %w", err)
	}
	return nil
}

// addFile copies srcPath into the archive as name and records its
// checksum in the manifest.
func addFile(tw *tar.Writer, m *Manifest, srcPath, name, kind string) error {
	f, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("archive: open %s: %w", srcPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("archive: stat %s: %w", srcPath, err)
	}
	if err := tw.WriteHeader(&tar.Header{
		Name:    name,
		Size:    info.Size(),
		Mode:    0o644,
		ModTime: info.ModTime(),
	}); err != nil {
		return fmt.Errorf("archive: header %s: %w", name, err)
	}

	h := sha256.New()
	written, err := io.Copy(tw, io.TeeReader(f, h))
	if err != nil {
		return fmt.Errorf("archive: write %s: %w", name, err)
	}
	m.Files[name] = FileEntry{
		SHA256: hex.EncodeToString(h.Sum(nil)),
		Size:   written,
		Type:   kind,
	}
	return nil
}
