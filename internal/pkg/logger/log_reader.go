package logger

import (
	"bufio"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"strings"
)

// maxScannedEntries bounds how far back the reader looks in the active file.
const maxScannedEntries = 10000

var ErrLogNotFound = errors.New("log entry not found")

type LogEntry struct {
	Id        string                 `json:"id"`
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Module    string                 `json:"module,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// LogFilter selects entries newest first. Level and Module match
// case-insensitively; empty means any.
type LogFilter struct {
	Level  string
	Module string
	Limit  int
	Offset int
}

func (f LogFilter) matches(entry *LogEntry) bool {
	if f.Level != "" && !strings.EqualFold(entry.Level, f.Level) {
		return false
	}
	if f.Module != "" && !strings.EqualFold(entry.Module, f.Module) {
		return false
	}
	return true
}

// tail returns up to maxScannedEntries of the most recent parseable lines,
// oldest first. Rotated backups are not read.
func (l *ZapLogger) tail() ([]LogEntry, error) {
	if l.filePath == "" {
		return nil, nil
	}

	file, err := os.Open(l.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	window := make([]LogEntry, 0, 256)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		var entry LogEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		if entry.Id == "" {
			sum := md5.Sum(line)
			entry.Id = hex.EncodeToString(sum[:])
		}
		window = append(window, entry)
		if len(window) >= 2*maxScannedEntries {
			window = append(window[:0], window[len(window)-maxScannedEntries:]...)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(window) > maxScannedEntries {
		window = window[len(window)-maxScannedEntries:]
	}
	return window, nil
}

func (l *ZapLogger) GetLogs(filter LogFilter) ([]LogEntry, error) {
	entries, err := l.tail()
	if err != nil {
		return nil, err
	}

	matched := make([]LogEntry, 0, filter.Limit)
	skipped := 0
	for i := len(entries) - 1; i >= 0; i-- {
		if !filter.matches(&entries[i]) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		if filter.Limit > 0 && len(matched) == filter.Limit {
			break
		}
		matched = append(matched, entries[i])
	}
	return matched, nil
}

func (l *ZapLogger) GetLogById(id string) (*LogEntry, error) {
	entries, err := l.tail()
	if err != nil {
		return nil, err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Id == id {
			return &entries[i], nil
		}
	}
	return nil, ErrLogNotFound
}
