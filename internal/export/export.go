// Package export renders the dedup records as .xlsx workbooks.
package export

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"vkwatch/internal/storage"
)

const (
	PostsFileName    = "checked_posts.xlsx"
	CommentsFileName = "found_comments.xlsx"

	sheetName  = "Sheet1"
	dateLayout = "2006-01-02 15:04:05"
)

// File is one generated workbook.
type File struct {
	Name string
	Data []byte
	Rows int
}

type column struct {
	title string
	width float64
}

var postColumns = []column{
	{"Ссылка на группу", 35},
	{"Ссылка на пост", 35},
	{"Текст поста (первые 50 символов)", 50},
	{"Дата проверки", 20},
	{"Проверок", 12},
}

var commentColumns = []column{
	{"Имя пользователя", 25},
	{"Ссылка на страницу пользователя", 35},
	{"Город", 20},
	{"Текст комментария", 50},
	{"Ссылка на комментарий", 35},
	{"Найденное ключевое слово", 20},
	{"Дата обнаружения", 20},
}

// Exporter reads report rows from the store.
type Exporter struct {
	store storage.ReportStore
	loc   *time.Location
}

func New(store storage.ReportStore, loc *time.Location) *Exporter {
	if loc == nil {
		loc = time.Local
	}
	return &Exporter{store: store, loc: loc}
}

// Posts builds the checked-posts workbook.
func (e *Exporter) Posts(ctx context.Context) (File, error) {
	rows, err := e.store.ListCheckedPosts(ctx, 0)
	if err != nil {
		return File{}, fmt.Errorf("list checked posts: %w", err)
	}
	data, err := build(postColumns, len(rows), func(i int) []any {
		p := rows[i]
		return []any{
			"https://vk.com/" + p.Domain,
			fmt.Sprintf("https://vk.com/wall-%d_%d", p.GroupID, p.PostID),
			p.Preview,
			p.LastCheckedAt.In(e.loc).Format(dateLayout),
			p.Checks,
		}
	})
	if err != nil {
		return File{}, err
	}
	return File{Name: PostsFileName, Data: data, Rows: len(rows)}, nil
}

// Comments builds the found-comments workbook.
func (e *Exporter) Comments(ctx context.Context) (File, error) {
	rows, err := e.store.ListMatchedComments(ctx, 0)
	if err != nil {
		return File{}, fmt.Errorf("list matched comments: %w", err)
	}
	data, err := build(commentColumns, len(rows), func(i int) []any {
		m := rows[i]
		return []any{
			m.AuthorName,
			m.AuthorLink,
			m.City,
			m.Text,
			m.Permalink,
			m.Keyword,
			m.DetectedAt.In(e.loc).Format(dateLayout),
		}
	})
	if err != nil {
		return File{}, err
	}
	return File{Name: CommentsFileName, Data: data, Rows: len(rows)}, nil
}

func build(cols []column, n int, row func(i int) []any) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	header := make([]any, len(cols))
	for i, c := range cols {
		header[i] = c.title
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(sheetName, name, name, c.width); err != nil {
			return nil, err
		}
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return nil, err
	}
	style, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"366092"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, err
	}
	lastHeader, err := excelize.CoordinatesToCellName(len(cols), 1)
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(sheetName, "A1", lastHeader, style); err != nil {
		return nil, err
	}

	for i := 0; i < n; i++ {
		vals := row(i)
		if err := f.SetSheetRow(sheetName, "A"+strconv.Itoa(i+2), &vals); err != nil {
			return nil, err
		}
	}

	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, err
	}
	if n > 0 {
		last, err := excelize.CoordinatesToCellName(len(cols), n+1)
		if err != nil {
			return nil, err
		}
		if err := f.AutoFilter(sheetName, "A1:"+last, nil); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
