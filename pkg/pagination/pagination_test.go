package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, DefaultLimit, NormalizeLimit(-3))
	assert.Equal(t, 7, NormalizeLimit(7))
	assert.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+1))
}

func TestCursorRoundTripKeepsNanoseconds(t *testing.T) {
	in := Cursor{CreatedAt: time.Date(2026, 4, 2, 10, 30, 0, 123456789, time.FixedZone("WAT", 3600)), ID: uuid.New()}

	token := EncodeCursor(in)
	assert.NotContains(t, token, "=")

	out, err := ParseCursor(token)
	require.NoError(t, err)
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
	assert.Equal(t, in.ID, out.ID)
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	for _, token := range []string{"!!", "bm9kb3Q", "eHl6LjEyMw"} {
		_, err := ParseCursor(token)
		assert.ErrorIs(t, err, ErrInvalidCursor, token)
	}

	c, err := ParseCursor("  ")
	require.NoError(t, err)
	assert.Nil(t, c)
}

type row struct {
	id uuid.UUID
	at time.Time
}

func TestPage(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := make([]row, 4)
	for i := range rows {
		rows[i] = row{id: uuid.New(), at: base.Add(-time.Duration(i) * time.Hour)}
	}
	key := func(r row) Cursor { return Cursor{CreatedAt: r.at, ID: r.id} }

	page, next := Page(rows, 3, key)
	assert.Len(t, page, 3)
	require.NotNil(t, next)
	assert.Equal(t, rows[2].id, next.ID)

	page, next = Page(rows[:3], 3, key)
	assert.Len(t, page, 3)
	assert.Nil(t, next)
}
