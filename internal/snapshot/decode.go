package snapshot

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/chirino/conversation-cache/internal/model"
	"github.com/klauspost/compress/zip"
)

// maxLineBytes bounds a single JSON line.
const maxLineBytes = 16 << 20

var zipMagic = []byte("PK\x03\x04")

// ErrNoRecordFile is returned when an archive holds no line-delimited JSON file.
var ErrNoRecordFile = errors.New("archive contains no .jsonb or .jsonl file")

// DecodeStats counts what a decode pass saw.
type DecodeStats struct {
	File     string `json:"file,omitempty"`
	Lines    int    `json:"lines"`
	BadLines int    `json:"badLines"`
}

// Decode reads raw records from a snapshot. Zip archives are searched for the
// first .jsonb or .jsonl entry; anything else is read as line-delimited JSON.
func Decode(r io.ReaderAt, size int64) ([]model.RawRecord, DecodeStats, error) {
	head := make([]byte, len(zipMagic))
	n, _ := r.ReadAt(head, 0)
	if n < len(zipMagic) || !bytes.Equal(head, zipMagic) {
		return DecodeLines(io.NewSectionReader(r, 0, size))
	}

	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, DecodeStats{}, fmt.Errorf("open zip: %w", err)
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !isRecordFile(f.Name) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, DecodeStats{File: f.Name}, fmt.Errorf("open %s: %w", f.Name, err)
		}
		records, stats, err := DecodeLines(rc)
		_ = rc.Close()
		stats.File = f.Name
		return records, stats, err
	}
	return nil, DecodeStats{}, ErrNoRecordFile
}

func isRecordFile(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".jsonb", ".jsonl":
		return true
	}
	return false
}

// DecodeLines parses one JSON object per line. Blank lines are ignored;
// lines that are not JSON objects are skipped and counted.
func DecodeLines(r io.Reader) ([]model.RawRecord, DecodeStats, error) {
	var stats DecodeStats
	var records []model.RawRecord

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		stats.Lines++
		dec := json.NewDecoder(bytes.NewReader(line))
		dec.UseNumber()
		var rec model.RawRecord
		if err := dec.Decode(&rec); err != nil || rec == nil {
			stats.BadLines++
			log.Debug("Skipping malformed snapshot line", "line", stats.Lines, "err", err)
			continue
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return records, stats, fmt.Errorf("read lines: %w", err)
	}
	return records, stats, nil
}
