package orm

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/blazeorm/internal/jsonobj"
	"github.com/roach88/blazeorm/internal/record"
	"github.com/roach88/blazeorm/internal/testutil"
)

func TestReference_ReferenceType(t *testing.T) {
	m, _, _ := newTestManager(t)

	a, err := m.Reference("Author", testutil.Key(2))
	require.NoError(t, err)
	st, err := m.State(a)
	require.NoError(t, err)
	assert.Equal(t, record.StateReference, st.State)
	assert.Equal(t, record.TaskFetch, st.Task)

	tests := []struct {
		name string
		key  any
	}{
		{"binary", testutil.Key(2)},
		{"binary string", string(testutil.Key(2))},
		{"hyphenated", "00000000-0000-6000-8000-000000000002"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := m.Reference("Author", tt.key)
			require.NoError(t, err)
			assert.Same(t, a, b)
		})
	}

	assert.Empty(t, a.Fields(), "the key of a reference record is not a field value")
}

func TestReference_NullReference(t *testing.T) {
	m, _, _ := newTestManager(t)

	null, err := m.NullReference("Author")
	require.NoError(t, err)
	assert.True(t, m.IsNullReference(null))

	for _, key := range []any{nil, []byte{}, make([]byte, 16), "00000000-0000-0000-0000-000000000000"} {
		e, err := m.Reference("Author", key)
		require.NoError(t, err)
		assert.Same(t, null, e)
	}

	key, err := m.ReferenceKey(null)
	require.NoError(t, err)
	assert.Nil(t, key)
	id, err := m.ReferenceID(null)
	require.NoError(t, err)
	assert.Empty(t, id)

	st, err := m.State(null)
	require.NoError(t, err)
	assert.Equal(t, record.TaskNone, st.Task, "the null reference is never fetched")

	_, err = m.NullReference("Setting")
	assert.Equal(t, CodeInvalidKey, CodeOf(err))
}

func TestReference_InvalidKeys(t *testing.T) {
	m, _, _ := newTestManager(t)

	for _, key := range []any{[]byte{1, 2, 3}, "short", 42, "zzzzzzzz-zzzz-zzzz-zzzz-zzzzzzzzzzzz"} {
		_, err := m.Reference("Author", key)
		assert.Equal(t, CodeInvalidKey, CodeOf(err), "key %v", key)
	}

	_, err := m.Reference("Tag", "go")
	assert.Equal(t, CodeInvalidKey, CodeOf(err), "a composite key needs a map")

	_, err = m.Reference("Nope", "x")
	assert.Error(t, err)
}

func TestReference_NaturalKey(t *testing.T) {
	m, _, _ := newTestManager(t)

	s, err := m.Reference("Setting", "theme")
	require.NoError(t, err)
	assert.Equal(t, "theme", s.Value("key"))
	assert.Equal(t, []string{"key"}, s.Fields())

	same, err := m.Reference("Setting", map[string]any{"key": "theme"})
	require.NoError(t, err)
	assert.Same(t, s, same)

	// Strings are compared in NFC.
	composed, err := m.Reference("Setting", "caf\u00e9")
	require.NoError(t, err)
	decomposed, err := m.Reference("Setting", "cafe\u0301")
	require.NoError(t, err)
	assert.Same(t, composed, decomposed)

	post, err := m.Reference("Post", testutil.Key(3))
	require.NoError(t, err)
	tag, err := m.Reference("Tag", map[string]any{"post": post, "name": "go"})
	require.NoError(t, err)
	again, err := m.Reference("Tag", record.New("Tag").Set("post", post).Set("name", "go"))
	require.NoError(t, err)
	assert.Same(t, tag, again)
	assert.Same(t, post, tag.Value("post"))
}

func TestKeyPart(t *testing.T) {
	m, _, _ := newTestManager(t)
	post, err := m.Reference("Post", testutil.Key(1))
	require.NoError(t, err)

	tests := []struct {
		value any
		want  string
	}{
		{nil, "nil@"},
		{"a-b", `s@"a-b"`},
		{7, "i@7"},
		{int64(-7), "i@-7"},
		{1.5, "f@1.5"},
		{true, "b@true"},
		{time.Date(2024, 6, 1, 14, 0, 0, 0, time.FixedZone("CEST", 2*3600)), "DT@2024-06-01T12:00:00Z"},
		{testutil.Status.MustCase("draft"), "E@Status.draft"},
		{[]byte{0xab, 0x01}, "x@ab01"},
		{post, "R@Post@00000000000060008000000000000001"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, m.keyPart(tt.value))
	}
	assert.Equal(t, `s@"a"-i@1`, m.keyHash([]any{"a", 1}))
}

func TestMake_WithoutKey(t *testing.T) {
	m, _, _ := newTestManager(t)

	post, err := m.Make("Post", map[string]any{"title": "hello"})
	require.NoError(t, err)
	assert.False(t, m.IsManaged(post))

	assert.Equal(t, "hello", post.Value("title"))
	assert.Equal(t, testutil.Status.First(), post.Value("status"))
	assert.True(t, post.Has("priority"))
	assert.Nil(t, post.Value("priority"))
	assert.Nil(t, post.Value("rating"))
	assert.True(t, jsonobj.New().Equal(post.Value("meta").(*jsonobj.Object)))
	assert.Equal(t, time.Time{}, post.Value("published"))
	assert.False(t, post.Has("id"))

	author, ok := post.Value("author").(*record.Entity)
	require.True(t, ok)
	assert.True(t, m.IsNullReference(author))
}

func TestMake_LoadsReference(t *testing.T) {
	m, _, _ := newTestManager(t)

	ref, err := m.Reference("Author", testutil.Key(3))
	require.NoError(t, err)

	a, err := m.Make("Author", map[string]any{"id": testutil.Key(3), "name": "ada"})
	require.NoError(t, err)
	assert.Same(t, ref, a)
	assert.Equal(t, "ada", a.Value("name"))
	assert.Equal(t, "", a.Value("email"))
	stored, err := m.IsStored(a)
	require.NoError(t, err)
	assert.True(t, stored)
	st, _ := m.State(a)
	assert.Equal(t, record.TaskNone, st.Task)

	// A loaded record is not overwritten.
	again, err := m.Make("Author", map[string]any{"id": ref, "name": "grace"})
	require.NoError(t, err)
	assert.Same(t, a, again)
	assert.Equal(t, "ada", a.Value("name"))

	_, err = m.Make("Author", map[string]any{"id": nil, "name": "nobody"})
	assert.Equal(t, CodeInvalidKey, CodeOf(err))
}

func TestMake_RejectsDeletedRecord(t *testing.T) {
	m, _, _ := newTestManager(t)

	s, err := m.Make("Setting", map[string]any{"key": "theme", "value": "dark"})
	require.NoError(t, err)
	require.NoError(t, m.Remove(s))
	require.NoError(t, m.Flush(context.Background()))

	_, err = m.Make("Setting", map[string]any{"key": "theme", "value": "light"})
	assert.True(t, IsInvalidState(err))
}

func TestFree(t *testing.T) {
	m, _, _ := newTestManager(t)

	kept, err := m.Reference("Author", testutil.Key(1))
	require.NoError(t, err)
	func() {
		for i := uint64(2); i <= 5; i++ {
			_, err := m.Reference("Author", testutil.Key(i))
			require.NoError(t, err)
		}
		for _, k := range []string{"a", "b"} {
			_, err := m.Reference("Setting", k)
			require.NoError(t, err)
		}
	}()
	assert.Equal(t, 7, m.Tracked())

	m.Free("Setting")
	assert.Equal(t, 5, m.Tracked(), "only Setting entries were released")

	m.Free()
	assert.Equal(t, 1, m.Tracked())

	same, err := m.Reference("Author", testutil.Key(1))
	require.NoError(t, err)
	assert.Same(t, kept, same)
	runtime.KeepAlive(kept)
}

func TestFree_KeepsPendingRecords(t *testing.T) {
	m, _, _ := newTestManager(t)

	func() {
		require.NoError(t, m.Persist(record.New("Setting").Set("key", "a").Set("value", nil)))
	}()
	m.Free()
	assert.Equal(t, 1, m.Tracked())

	s, err := m.Reference("Setting", "a")
	require.NoError(t, err)
	isNew, err := m.IsNew(s)
	require.NoError(t, err)
	assert.True(t, isNew)
}
