// Copyright (C) 2024 sitroom contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package ingestion loads raw vendor alert records from a file or
// directory of files, tolerating per-file read/parse failures.
package ingestion

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"sitroom/alert"
	"sitroom/errors"
)

// Loader reads raw alert records from the filesystem.
type Loader struct {
	logger *zap.Logger
}

// New returns a Loader. logger may be nil.
func New(logger *zap.Logger) *Loader {
	return &Loader{logger: logger}
}

// Load reads every *.json, *.jsonl and *.ndjson file under path (or path
// itself, if it names a single file) and concatenates their decoded
// records. A single file that fails to open or parse is logged and
// skipped rather than aborting the run; an input path that does not exist
// at all is a fatal MissingInput error.
func (l *Loader) Load(path string) ([]alert.RawRecord, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInput, "stat", "input path does not exist")
	}

	var files []string
	if info.IsDir() {
		files = append(files, matchGlob(path, "*.json")...)
		files = append(files, matchGlob(path, "*.jsonl")...)
		files = append(files, matchGlob(path, "*.ndjson")...)
	} else {
		files = []string{path}
	}

	var records []alert.RawRecord
	for _, f := range files {
		decoded, err := l.loadFile(f)
		if err != nil {
			if l.logger != nil {
				l.logger.Warn("failed to load input file", zap.String("path", f), zap.Error(err))
			}
			continue
		}
		records = append(records, decoded...)
	}

	return records, nil
}

func matchGlob(dir, pattern string) []string {
	matches, _ := filepath.Glob(filepath.Join(dir, pattern))
	return matches
}

func (l *Loader) loadFile(path string) ([]alert.RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInput, "open", "failed to open input file")
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".json") {
		return decodeJSON(f)
	}
	return decodeNDJSON(f)
}

// decodeJSON handles a `[...]` array, a `{"data": [...]}` envelope, or a
// single bare object.
func decodeJSON(r *os.File) ([]alert.RawRecord, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInput, "decode", "invalid JSON")
	}

	var envelope struct {
		Data []alert.RawRecord `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Data != nil {
		return envelope.Data, nil
	}

	var list []alert.RawRecord
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}

	var single alert.RawRecord
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInput, "decode", "unrecognized JSON shape")
	}
	return []alert.RawRecord{single}, nil
}

// decodeNDJSON handles one JSON object per line, skipping blank lines.
func decodeNDJSON(r *os.File) ([]alert.RawRecord, error) {
	var records []alert.RawRecord
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec alert.RawRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInput, "scan", "failed to read NDJSON")
	}
	return records, nil
}
