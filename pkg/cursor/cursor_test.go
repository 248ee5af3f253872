package cursor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/nebula-extract/pkg/nebulaerrors"
)

func TestConstructors(t *testing.T) {
	off, ok := Offset(200).Offset()
	assert.True(t, ok)
	assert.Equal(t, int64(200), off)

	_, ok = Offset(200).Token()
	assert.False(t, ok)

	tok, ok := Token("abc").Token()
	assert.True(t, ok)
	assert.Equal(t, "abc", tok)

	key, ok := RangeKey("C").Key()
	assert.True(t, ok)
	assert.Equal(t, "C", key)

	assert.Equal(t, KindNone, None().Kind())
	assert.False(t, None().Exhausted())
	assert.True(t, Done().Exhausted())
}

func TestExhaustIsACopy(t *testing.T) {
	c := RangeKey("B")
	done := c.Exhaust()

	assert.False(t, c.Exhausted())
	assert.True(t, done.Exhausted())
	key, _ := done.Key()
	assert.Equal(t, "B", key)
	assert.False(t, c.Equal(done))
}

func TestExpect(t *testing.T) {
	tests := []struct {
		name      string
		cursor    Cursor
		kind      Kind
		wantError bool
	}{
		{name: "offset ok", cursor: Offset(0), kind: KindOffset},
		{name: "empty token ok", cursor: Token(""), kind: KindToken},
		{name: "none ok", cursor: None(), kind: KindNone},
		{name: "wrong kind", cursor: Token("x"), kind: KindOffset, wantError: true},
		{name: "exhausted", cursor: Offset(100).Exhaust(), kind: KindOffset, wantError: true},
		{name: "done", cursor: Done(), kind: KindNone, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Expect(tt.cursor, tt.kind)
			if !tt.wantError {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, nebulaerrors.IsType(err, nebulaerrors.ErrorTypePagination))
			assert.False(t, nebulaerrors.IsRetryable(err))
		})
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, "offset:100", Offset(100).String())
	assert.Equal(t, "key:E (exhausted)", RangeKey("E").Exhaust().String())
	assert.Equal(t, "none (exhausted)", Done().String())

	long := Token(strings.Repeat("x", 100)).String()
	assert.True(t, strings.HasSuffix(long, "..."))
	assert.Less(t, len(long), 50)
}
