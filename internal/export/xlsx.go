// Package export writes saved sessions to spreadsheet workbooks.
package export

import (
	"errors"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/commentscope/internal/corpus"
	"github.com/sells-group/commentscope/internal/model"
)

// Sheet names in an exported workbook.
const (
	SheetVideos   = "videos"
	SheetComments = "comments"
	SheetChat     = "chat"
)

var (
	videoHeader   = []string{"video_id", "video_url", "title", "channel", "published_at", "duration_class", "view_count", "like_count", "comment_count"}
	commentHeader = []string{"video_id", "video_title", "comment_id", "parent_id", "is_reply", "author", "text", "published_at", "like_count"}
	chatHeader    = []string{"role", "at", "content"}
)

// WriteWorkbook writes the bundle's videos, comments and transcript to an
// .xlsx file at path.
func WriteWorkbook(path string, b *model.SessionBundle) error {
	if b == nil {
		return eris.New("xlsx: nil bundle")
	}
	videos, err := corpus.DecodeVideos(b.VideosCSV)
	if err != nil && !errors.Is(err, corpus.ErrEmpty) {
		return eris.Wrap(err, "xlsx: decode videos")
	}
	comments, err := corpus.DecodeComments(b.CommentsCSV)
	if err != nil && !errors.Is(err, corpus.ErrEmpty) {
		return eris.Wrap(err, "xlsx: decode comments")
	}

	f := xlsx.NewFile()

	vs, err := addSheet(f, SheetVideos, videoHeader)
	if err != nil {
		return err
	}
	for _, v := range videos {
		published := ""
		if !v.PublishedAt.IsZero() {
			published = v.PublishedAt.Format(time.RFC3339)
		}
		addRow(vs, v.ID, v.URL, v.Title, v.Channel, published, string(v.DurationClass),
			strconv.FormatInt(v.ViewCount, 10), strconv.FormatInt(v.LikeCount, 10), strconv.FormatInt(v.CommentCount, 10))
	}

	cs, err := addSheet(f, SheetComments, commentHeader)
	if err != nil {
		return err
	}
	for _, c := range comments {
		addRow(cs, c.VideoID, c.VideoTitle, c.CommentID, c.ParentID, strconv.FormatBool(c.IsReply),
			c.Author, c.Text, c.PublishedAt, strconv.FormatInt(c.LikeCount, 10))
	}

	ts, err := addSheet(f, SheetChat, chatHeader)
	if err != nil {
		return err
	}
	for _, t := range b.Chat {
		addRow(ts, string(t.Role), t.At.Format(time.RFC3339), t.Content)
	}

	if err := f.Save(path); err != nil {
		return eris.Wrap(err, "xlsx: save workbook")
	}
	return nil
}

func addSheet(f *xlsx.File, name string, header []string) (*xlsx.Sheet, error) {
	sheet, err := f.AddSheet(name)
	if err != nil {
		return nil, eris.Wrapf(err, "xlsx: add sheet %s", name)
	}
	addRow(sheet, header...)
	return sheet, nil
}

func addRow(sheet *xlsx.Sheet, values ...string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

// ReadSheet returns every row of the named sheet as strings, header
// included.
func ReadSheet(path, name string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}
	sheet, ok := f.Sheet[name]
	if !ok {
		return nil, eris.Errorf("xlsx: sheet %q not found", name)
	}

	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		rows = append(rows, rowToStrings(row))
	}
	return rows, nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
