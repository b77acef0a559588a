package backend

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thiagokokada/gitrails/internal/git"
)

func logRecord(fields ...string) string {
	return strings.Join(fields, "\n") + "\x00"
}

func TestParseGitLogRecord(t *testing.T) {
	t.Parallel()

	a, b, c := strings.Repeat("a", 40), strings.Repeat("b", 40), strings.Repeat("c", 40)
	tests := []struct {
		name    string
		rec     string
		want    *git.Commit
		wantErr bool
	}{
		{
			name: "merge",
			rec: strings.Join([]string{a, b + " " + c, "Alice", "alice@example.com", "2024-01-02T03:04:05Z",
				"Bob", "bob@example.com", "2024-01-02T03:05:06+01:00", "Subject line\n\nBody line\n"}, "\n"),
			want: &git.Commit{
				ID:        a,
				ShortID:   "aaaaaaa",
				Message:   "Subject line\n\nBody line\n",
				Parents:   []git.ParentRef{git.NewParentRef(b), git.NewParentRef(c)},
				Author:    git.Person{Name: "Alice", Email: "alice@example.com", When: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
				Committer: git.Person{Name: "Bob", Email: "bob@example.com", When: time.Date(2024, 1, 2, 2, 5, 6, 0, time.UTC)},
			},
		},
		{
			name: "root_without_message",
			rec:  "h\n\nan\nae\n2024-01-02T03:04:05Z\ncn\nce\n2024-01-02T03:04:05Z\n",
			want: &git.Commit{
				ID:        "h",
				ShortID:   "h",
				Author:    git.Person{Name: "an", Email: "ae", When: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
				Committer: git.Person{Name: "cn", Email: "ce", When: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
			},
		},
		{name: "short_record", rec: "only\ntwo\nlines", wantErr: true},
		{name: "missing_hash", rec: "\n\nan\nae\nt\ncn\nce\nt", wantErr: true},
		{name: "bad_author_date", rec: "h\n\nan\nae\nyesterday\ncn\nce\n2024-01-02T03:04:05Z\n", wantErr: true},
		{name: "bad_committer_date", rec: "h\n\nan\nae\n2024-01-02T03:04:05Z\ncn\nce\n\n", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseGitLogRecord([]byte(tt.rec))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.ID, got.ID)
			assert.Equal(t, tt.want.ShortID, got.ShortID)
			assert.Equal(t, tt.want.Message, got.Message)
			assert.Equal(t, tt.want.GraphParents(), got.GraphParents())
			assert.Equal(t, tt.want.Author.Name, got.Author.Name)
			assert.True(t, tt.want.Author.When.Equal(got.Author.When))
			assert.Equal(t, tt.want.Committer.Email, got.Committer.Email)
			assert.True(t, tt.want.Committer.When.Equal(got.Committer.When))
			assert.False(t, got.IsStash())
		})
	}
}

func TestGitLogStreamNext(t *testing.T) {
	t.Parallel()

	when := "2024-01-02T03:04:05Z"
	out := logRecord("c3", "c2", "n", "e", when, "n", "e", when, "third") +
		"\n" + logRecord("c2", "c1", "n", "e", when, "n", "e", when, "second") +
		"\n" + logRecord("broken") +
		"\n" + logRecord("cx", "c1", "n", "e", "02/01/2024", "n", "e", when, "bad date") +
		"\n" + logRecord("c1", "", "n", "e", when, "n", "e", when, "first")
	stream := &gitLogStream{
		ctx:  context.Background(),
		r:    bufio.NewReader(strings.NewReader(out)),
		skip: func(id string) bool { return id == "c2" },
	}

	c, err := stream.Next()
	require.NoError(t, err)
	assert.Equal(t, "c3", c.ID)

	_, err = stream.Next()
	require.ErrorIs(t, err, git.ErrSourceCorrupt, "c2 is skipped, the broken record is reported")

	_, err = stream.Next()
	require.ErrorIs(t, err, git.ErrSourceCorrupt)
	var parseErr *time.ParseError
	assert.ErrorAs(t, err, &parseErr)

	c, err = stream.Next()
	require.NoError(t, err)
	assert.Equal(t, "c1", c.ID)

	_, err = stream.Next()
	assert.True(t, errors.Is(err, io.EOF))
}

func TestGitLogStreamCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stream := &gitLogStream{ctx: ctx, r: bufio.NewReader(strings.NewReader(""))}
	_, err := stream.Next()
	require.ErrorIs(t, err, context.Canceled)
}
