package server

import (
	"context"
	"log"
	"time"

	"github.com/crystal-mush/sourcemud/pkg/archive"
)

// Backup archives the account database, deny list and config file into
// the backup directory and prunes old archives.
func (s *Server) Backup() (string, error) {
	params := archive.Params{
		Dir:      s.cfg.BackupDir,
		Server:   VersionString(),
		MudName:  s.cfg.MudName,
		DenyFile: s.cfg.DenyFile,
		ConfPath: s.cfg.ConfPath,
	}
	if s.store != nil {
		params.Accounts = s.store.Count()
		params.Snapshot = s.store.Snapshot
	}
	path, err := archive.Create(params)
	if err != nil {
		return "", err
	}
	if s.cfg.BackupRetain > 0 {
		if _, err := archive.Prune(s.cfg.BackupDir, s.cfg.BackupRetain); err != nil {
			log.Printf("WARNING: prune backups: %v", err)
		}
	}
	return path, nil
}

// autoBackup runs Backup every BackupInterval minutes until ctx ends.
func (s *Server) autoBackup(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(s.cfg.BackupInterval) * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		log.Printf("Auto-backup starting...")
		path, err := s.Backup()
		if err != nil {
			log.Printf("ERROR: Auto-backup failed: %v", err)
			continue
		}
		log.Printf("Auto-backup complete: %s", path)
	}
}
