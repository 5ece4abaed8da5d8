// Package persistence provides the atomic temp-file-then-rename write
// pattern shared by every tracker, the DLQ, and the ProcessedIndex, so
// concurrent readers never observe a partially written document.
package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// WriteJSON atomically writes v as JSON (UTF-8, no HTML/ASCII
// escaping) to path: marshal, write to a temp file in the same
// directory, then rename over path.
func WriteJSON(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	var buf []byte
	enc, err := marshalNoEscape(v)
	if err != nil {
		return err
	}
	buf = enc

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

func marshalNoEscape(v any) ([]byte, error) {
	var buf jsonBuffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// jsonBuffer is a minimal bytes.Buffer stand-in so this file does not
// import bytes, matching the teacher's low-dependency persistence
// style.
type jsonBuffer struct {
	data []byte
}

func (b *jsonBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

func (b *jsonBuffer) Bytes() []byte { return b.data }

// ReadJSON reads and unmarshals path into v. If the file does not
// exist, it returns os.ErrNotExist so callers can initialize defaults;
// this mirrors the teacher's load-or-default pattern.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// LoadOrDefault reads path into v, logging a warning and leaving v
// untouched (caller-supplied zero value/defaults) when the file is
// missing or corrupt, per the "readers tolerate missing/corrupt files"
// design note.
func LoadOrDefault(logger *zap.Logger, path string, v any) {
	if err := ReadJSON(path, v); err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("persisted state unreadable, using defaults",
				zap.String("path", path), zap.Error(err))
		}
	}
}
