package archive

import (
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
)

// Info holds metadata about an existing archive file.
type Info struct {
	Path      string // Full filesystem path
	Filename  string // Base filename
	Size      int64  // File size in bytes
	Timestamp string // From manifest, or file mod time
	MudName   string // From manifest
	Accounts  int    // From manifest
}

// List scans dir for .tar.gz files and returns info about each, sorted
// newest-first.
func List(dir string) ([]Info, error) {
	pattern := filepath.Join(dir, "*.tar.gz")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("archive: glob %s: %w", pattern, err)
	}

	var archives []Info
	for _, path := range matches {
		st, err := os.Stat(path)
		if err != nil {
			continue
		}
		ai := Info{
			Path:      path,
			Filename:  filepath.Base(path),
			Size:      st.Size(),
			Timestamp: st.ModTime().UTC().Format(timeFormat),
		}
		if m, err := readManifest(path); err == nil {
			ai.Timestamp = m.Timestamp
			ai.MudName = m.MudName
			ai.Accounts = m.Accounts
		}
		archives = append(archives, ai)
	}

	sort.Slice(archives, func(i, j int) bool {
		if archives[i].Timestamp != archives[j].Timestamp {
			return archives[i].Timestamp > archives[j].Timestamp
		}
		return archives[i].Filename > archives[j].Filename
	})
	return archives, nil
}

// Prune deletes archives in dir beyond the newest keep. It returns the
// number removed.
func Prune(dir string, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	archives, err := List(dir)
	if err != nil {
		return 0, err
	}
	if len(archives) <= keep {
		return 0, nil
	}
	removed := 0
	for _, ai := range archives[keep:] {
		if err := os.Remove(ai.Path); err != nil {
			log.Printf("WARNING: prune archive %s: %v", ai.Filename, err)
			continue
		}
		log.Printf("Pruned old archive: %s", ai.Filename)
		removed++
	}
	return removed, nil
}

// readManifest opens a .tar.gz file and extracts the manifest entry.
func readManifest(archivePath string) (*Manifest, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer gr.Close()

	tr := tar.NewReader(gr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if hdr.Name != manifestName {
			continue
		}
		var m Manifest
		if err := json.NewDecoder(tr).Decode(&m); err != nil {
			return nil, err
		}
		return &m, nil
	}
	return nil, fmt.Errorf("%s not found in archive", manifestName)
}
