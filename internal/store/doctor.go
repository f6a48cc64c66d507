package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

type DoctorIssueLevel string

const (
	DoctorIssueLevelError DoctorIssueLevel = "error"
	DoctorIssueLevelWarn  DoctorIssueLevel = "warn"
)

type DoctorIssue struct {
	Level   DoctorIssueLevel `json:"level"`
	Code    string           `json:"code"`
	Message string           `json:"message"`
	Path    string           `json:"path,omitempty"`
}

type DoctorReport struct {
	Dir    string        `json:"dir"`
	Issues []DoctorIssue `json:"issues"`
}

func (r DoctorReport) HasErrors() bool {
	for _, it := range r.Issues {
		if it.Level == DoctorIssueLevelError {
			return true
		}
	}
	return false
}

// Add appends an issue; callers outside this package use it to fold remote
// checks into the same report.
func (r *DoctorReport) Add(level DoctorIssueLevel, code, msg, path string) {
	r.Issues = append(r.Issues, DoctorIssue{Level: level, Code: code, Message: msg, Path: path})
}

var ErrDoctorIssuesFound = errors.New("doctor: issues found")

// Doctor checks the local state under s.Dir: config file, SQLite database
// and saved list positions. It never modifies anything except creating the
// directory and the schema when missing.
func (s Store) Doctor(ctx context.Context) DoctorReport {
	r := DoctorReport{Dir: s.Dir, Issues: []DoctorIssue{}}

	if err := s.Ensure(); err != nil {
		r.Add(DoctorIssueLevelError, "dir_unwritable", err.Error(), s.Dir)
		return r
	}

	cfgPath := filepath.Join(s.Dir, "config.json")
	if b, err := os.ReadFile(cfgPath); err == nil && len(bytes.TrimSpace(b)) > 0 {
		var cfg GlobalConfig
		if err := json.Unmarshal(b, &cfg); err != nil {
			r.Add(DoctorIssueLevelError, "config_invalid_json", err.Error(), cfgPath)
		} else {
			for _, kv := range [][2]string{
				{"format", cfg.Format},
				{"logLevel", cfg.LogLevel},
			} {
				probe := GlobalConfig{}
				if err := probe.Set(kv[0], kv[1]); err != nil {
					r.Add(DoctorIssueLevelWarn, "config_invalid_value", err.Error(), cfgPath)
				}
			}
		}
	}

	db, err := s.openSQLite(ctx)
	if err != nil {
		r.Add(DoctorIssueLevelError, "sqlite_open_failed", err.Error(), s.sqlitePath())
	} else {
		var res string
		if err := db.QueryRowContext(ctx, `PRAGMA integrity_check`).Scan(&res); err != nil {
			r.Add(DoctorIssueLevelError, "sqlite_integrity_failed", err.Error(), s.sqlitePath())
		} else if res != "ok" {
			r.Add(DoctorIssueLevelError, "sqlite_integrity_failed", res, s.sqlitePath())
		}
		_ = db.Close()
	}

	lsPath := s.listStatePath()
	if b, err := os.ReadFile(lsPath); err == nil {
		var st ListStateFile
		if err := json.Unmarshal(b, &st); err != nil {
			r.Add(DoctorIssueLevelWarn, "list_state_invalid_json", err.Error()+" (ignored; defaults are used)", lsPath)
		}
	}
	return r
}
