package export

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"vkwatch/internal/storage"
)

type fakeReports struct {
	posts    []storage.CheckedPost
	comments []storage.MatchedComment
	err      error
}

func (f fakeReports) ListCheckedPosts(context.Context, int) ([]storage.CheckedPost, error) {
	return f.posts, f.err
}

func (f fakeReports) ListMatchedComments(context.Context, int) ([]storage.MatchedComment, error) {
	return f.comments, f.err
}

func readRows(t *testing.T, data []byte) [][]string {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	return rows
}

func TestPostsWorkbook(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	e := New(fakeReports{posts: []storage.CheckedPost{
		{Domain: "club", GroupID: 1, PostID: 10, Preview: "hello...", LastCheckedAt: at, Checks: 3},
	}}, time.UTC)

	file, err := e.Posts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PostsFileName, file.Name)
	assert.Equal(t, 1, file.Rows)

	rows := readRows(t, file.Data)
	require.Len(t, rows, 2)
	assert.Equal(t, "Ссылка на группу", rows[0][0])
	assert.Equal(t, []string{"https://vk.com/club", "https://vk.com/wall-1_10", "hello...", "2024-05-01 12:30:00", "3"}, rows[1])
}

func TestCommentsWorkbook(t *testing.T) {
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	e := New(fakeReports{comments: []storage.MatchedComment{{
		AuthorName: "Иван Петров",
		AuthorLink: "https://vk.com/id100",
		City:       "Москва",
		Text:       "Ищу кот",
		Permalink:  "https://vk.com/wall-1_10?reply=5",
		Keyword:    "кот",
		DetectedAt: at,
	}}}, time.UTC)

	file, err := e.Comments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CommentsFileName, file.Name)

	rows := readRows(t, file.Data)
	require.Len(t, rows, 2)
	assert.Len(t, rows[0], len(commentColumns))
	assert.Equal(t, "Иван Петров", rows[1][0])
	assert.Equal(t, "кот", rows[1][5])
	assert.Equal(t, "2024-05-01 09:00:00", rows[1][6])
}

func TestEmptyWorkbookHasHeaderOnly(t *testing.T) {
	file, err := New(fakeReports{}, nil).Comments(context.Background())
	require.NoError(t, err)
	assert.Zero(t, file.Rows)
	rows := readRows(t, file.Data)
	require.Len(t, rows, 1)
}

func TestStoreError(t *testing.T) {
	_, err := New(fakeReports{err: errors.New("locked")}, nil).Posts(context.Background())
	require.Error(t, err)
}
