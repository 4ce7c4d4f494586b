// Package corpus persists collected comments and video statistics as CSV.
package corpus

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/sells-group/commentscope/internal/model"
)

// Writer appends CommentRecords to one CSV file. The header is written with
// the first non-empty batch.
type Writer struct {
	mu     sync.Mutex
	path   string
	header bool
	rows   int
}

// Create truncates (or creates) the file at path and returns a Writer for it.
func Create(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, eris.Wrap(err, "corpus: create dir")
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, eris.Wrap(err, "corpus: create file")
	}
	if err := f.Close(); err != nil {
		return nil, eris.Wrap(err, "corpus: close file")
	}
	return &Writer{path: path}, nil
}

// Path returns the file backing the writer.
func (w *Writer) Path() string {
	return w.path
}

// Rows returns the number of records appended so far.
func (w *Writer) Rows() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows
}

// Append writes recs to the end of the file.
func (w *Writer) Append(recs []model.CommentRecord) error {
	if len(recs) == 0 {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.OpenFile(w.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return eris.Wrap(err, "corpus: open for append")
	}
	defer f.Close() //nolint:errcheck

	cw := csv.NewWriter(f)
	enc := csvutil.NewEncoder(cw)
	enc.AutoHeader = !w.header
	if err := enc.Encode(recs); err != nil {
		return eris.Wrap(err, "corpus: encode comments")
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "corpus: flush comments")
	}
	w.header = true
	w.rows += len(recs)
	return nil
}

// ErrEmpty is returned when a corpus file holds no records.
var ErrEmpty = errors.New("corpus: no records")

// ReadComments loads every CommentRecord from the CSV at path.
func ReadComments(path string) ([]model.CommentRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "corpus: read file")
	}
	return DecodeComments(data)
}

// DecodeComments parses CSV bytes into CommentRecords.
func DecodeComments(data []byte) ([]model.CommentRecord, error) {
	var recs []model.CommentRecord
	if err := decode(data, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// EncodeVideos renders video statistics as CSV bytes with a header.
func EncodeVideos(videos []model.VideoRecord) ([]byte, error) {
	return encode(videos)
}

// DecodeVideos parses CSV bytes produced by EncodeVideos.
func DecodeVideos(data []byte) ([]model.VideoRecord, error) {
	var recs []model.VideoRecord
	if err := decode(data, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

func encode[T any](rows []T) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	enc := csvutil.NewEncoder(cw)
	if len(rows) == 0 {
		var zero T
		if err := enc.EncodeHeader(zero); err != nil {
			return nil, eris.Wrap(err, "corpus: encode header")
		}
	} else if err := enc.Encode(rows); err != nil {
		return nil, eris.Wrap(err, "corpus: encode rows")
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, eris.Wrap(err, "corpus: flush rows")
	}
	return buf.Bytes(), nil
}

func decode[T any](data []byte, out *[]T) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return ErrEmpty
	}
	dec, err := csvutil.NewDecoder(csv.NewReader(bytes.NewReader(data)))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmpty
		}
		return eris.Wrap(err, "corpus: read header")
	}
	for {
		var row T
		if err := dec.Decode(&row); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return eris.Wrap(err, "corpus: decode row")
		}
		*out = append(*out, row)
	}
	if len(*out) == 0 {
		return ErrEmpty
	}
	return nil
}

// WriteFile writes raw CSV bytes to path, creating parent directories.
func WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "corpus: create dir")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrap(err, "corpus: write file")
	}
	return nil
}
