package orm_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/blazeorm/internal/jsonobj"
	"github.com/roach88/blazeorm/internal/orm"
	"github.com/roach88/blazeorm/internal/record"
	"github.com/roach88/blazeorm/internal/sqlite"
	"github.com/roach88/blazeorm/internal/store"
	"github.com/roach88/blazeorm/internal/testutil"
)

var published = time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)

// openManager returns a manager over a SQLite engine with the test schema
// created in a fresh database.
func openManager(t *testing.T) (*orm.Manager, *store.Conn) {
	t.Helper()
	conn, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	m := attachManager(t, conn)
	engine, err := m.StorageEngine("Author")
	require.NoError(t, err)
	require.NoError(t, engine.(*sqlite.Engine).CreateTables(context.Background()))
	return m, conn
}

// attachManager returns a fresh manager over an existing database.
func attachManager(t *testing.T, conn *store.Conn) *orm.Manager {
	t.Helper()
	m := orm.NewManager(orm.WithKeyGenerator(testutil.NewSequenceKeys()))
	require.NoError(t, m.AddStorageEngine(sqlite.New(conn, testutil.Registry(), m.Resolver())))
	return m
}

func seedPosts(t *testing.T, m *orm.Manager) (*record.Entity, []*record.Entity) {
	t.Helper()
	author := record.New("Author").
		Set("name", "ada").
		Set("email", "ada@example.com").
		Set("born", time.Date(1815, 12, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, m.Persist(author))

	var posts []*record.Entity
	for i, title := range []string{"Notes", "Analytical engine", "Bernoulli numbers"} {
		meta, err := jsonobj.From(map[string]any{"n": i})
		require.NoError(t, err)
		p := record.New("Post").
			Set("title", title).
			Set("author", author).
			Set("status", testutil.Status.MustCase("published")).
			Set("priority", testutil.Priority.MustCase("high")).
			Set("rating", 4.5).
			Set("meta", meta).
			Set("published", published)
		require.NoError(t, m.Persist(p))
		posts = append(posts, p)
	}
	require.NoError(t, m.Flush(context.Background()))
	return author, posts
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	m, conn := openManager(t)
	author, _ := seedPosts(t, m)
	authorID, err := m.ReferenceID(author)
	require.NoError(t, err)

	fresh := attachManager(t, conn)
	post, err := fresh.FindOne(ctx, "Post", orm.Where("title", "=", "Notes"))
	require.NoError(t, err)

	assert.Equal(t, "Notes", post.Value("title"))
	assert.Equal(t, testutil.Status.MustCase("published"), post.Value("status"))
	assert.Equal(t, testutil.Priority.MustCase("high"), post.Value("priority"))
	assert.Equal(t, 4.5, post.Value("rating"))
	n, ok := post.Value("meta").(*jsonobj.Object).GetInt("n")
	assert.True(t, ok)
	assert.Equal(t, int64(0), n)
	assert.True(t, published.Equal(post.Value("published").(time.Time)))

	// The author is known by key only until it is fetched.
	ref := post.Value("author").(*record.Entity)
	id, err := fresh.ReferenceID(ref)
	require.NoError(t, err)
	assert.Equal(t, authorID, id)
	st, err := fresh.State(ref)
	require.NoError(t, err)
	assert.Equal(t, record.StateReference, st.State)
	assert.False(t, ref.Has("name"))

	require.NoError(t, fresh.Prefetch(ctx, ref))
	assert.Equal(t, "ada", ref.Value("name"))
	assert.True(t, time.Date(1815, 12, 10, 0, 0, 0, 0, time.UTC).Equal(ref.Value("born").(time.Time)))
	stored, err := fresh.IsStored(ref)
	require.NoError(t, err)
	assert.True(t, stored)
}

func TestRoundTrip_UnionValues(t *testing.T) {
	ctx := context.Background()
	m, conn := openManager(t)

	values := map[string]any{
		"string": "dark",
		"int":    int64(42),
		"bool":   true,
		"time":   published,
		"null":   nil,
	}
	for key, v := range values {
		require.NoError(t, m.Persist(record.New("Setting").Set("key", key).Set("value", v)))
	}
	require.NoError(t, m.Flush(ctx))

	fresh := attachManager(t, conn)
	for key, want := range values {
		s, err := fresh.FindOne(ctx, "Setting", orm.Where("key", "=", key))
		require.NoError(t, err, key)
		if tm, ok := want.(time.Time); ok {
			assert.True(t, tm.Equal(s.Value("value").(time.Time)), key)
			continue
		}
		assert.Equal(t, want, s.Value("value"), key)
	}

	found, err := fresh.FindAll(ctx, "Setting", orm.Where("value", "=", int64(42)), 0)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "int", found[0].Value("key"))
}

func TestRepository_Run(t *testing.T) {
	ctx := context.Background()
	m, _ := openManager(t)
	seedPosts(t, m)

	repo, err := m.Repository("Post")
	require.NoError(t, err)

	res, err := repo.Run(ctx, orm.Criteria{
		Order:          []orm.Order{orm.Desc("title")},
		Limit:          2,
		CalculateTotal: true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Total)
	require.Len(t, res.Records, 2)
	assert.Equal(t, "Notes", res.Records[0].Value("title"))
	assert.Equal(t, "Bernoulli numbers", res.Records[1].Value("title"))

	res, err = repo.Run(ctx, orm.Criteria{Order: []orm.Order{orm.Asc("title")}, Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "Bernoulli numbers", res.Records[0].Value("title"))
}

func TestRepository_LoadedRecordsJoinIdentityMap(t *testing.T) {
	ctx := context.Background()
	m, _ := openManager(t)
	author, posts := seedPosts(t, m)

	found, err := m.FindAll(ctx, "Post", orm.Where("author", "=", author), 0, orm.Asc("title"))
	require.NoError(t, err)
	require.Len(t, found, 3)
	assert.Same(t, posts[1], found[0])
	assert.Same(t, author, found[0].Value("author"))
}

func TestRepository_Filters(t *testing.T) {
	ctx := context.Background()
	m, _ := openManager(t)
	for _, title := range []string{"100% done", "1000 done", "Notes_draft", "Notes draft"} {
		require.NoError(t, m.Persist(record.New("Post").Set("title", title)))
	}
	require.NoError(t, m.Flush(ctx))

	titles := func(cond orm.Cond) []string {
		found, err := m.FindAll(ctx, "Post", cond, 0, orm.Asc("title"))
		require.NoError(t, err)
		out := make([]string, len(found))
		for i, p := range found {
			out[i] = p.Value("title").(string)
		}
		return out
	}

	assert.Equal(t, []string{"100% done"}, titles(orm.Where("title", "~", "100%")))
	assert.Equal(t, []string{"Notes_draft"}, titles(orm.Where("title", "~~", "_dr")))
	assert.Equal(t, []string{"100% done", "1000 done", "Notes draft"}, titles(orm.Where("title", "!~", "Notes_")))
	assert.Equal(t, []string{"1000 done", "Notes draft"}, titles(orm.Where("title", "=", []string{"Notes draft", "1000 done"})))
	assert.Equal(t, []string{"100% done", "1000 done"}, titles(orm.Where("title", "!=", []string{"Notes draft", "Notes_draft"})))
	assert.Empty(t, titles(orm.Where("title", "=", []string{})))
	assert.Len(t, titles(orm.Where("title", "!=", []string{})), 4)

	cond, err := orm.Filter{"or": orm.Filter{"title": "1000 done", "title ~": "Notes "}}.Cond()
	require.NoError(t, err)
	assert.Equal(t, []string{"1000 done", "Notes draft"}, titles(cond))

	_, err = m.FindOne(ctx, "Post", orm.Where("title", "=", "missing"))
	assert.True(t, orm.IsNotFound(err))
	assert.True(t, errors.Is(err, orm.ErrNotFound))

	_, err = m.FindAll(ctx, "Post", orm.Where("rating", "~", "4"), 0)
	assert.Equal(t, orm.CodeUnsupportedOperation, orm.CodeOf(err))
}

func TestRemoveAndPrefetch(t *testing.T) {
	ctx := context.Background()
	m, conn := openManager(t)
	_, posts := seedPosts(t, m)

	require.NoError(t, m.Remove(posts[0]))
	require.NoError(t, m.Flush(ctx))
	deleted, err := m.IsDeleted(posts[0])
	require.NoError(t, err)
	assert.True(t, deleted)

	fresh := attachManager(t, conn)
	gone, err := fresh.Reference("Post", mustID(t, m, posts[0]))
	require.NoError(t, err)
	kept, err := fresh.Reference("Post", mustID(t, m, posts[1]))
	require.NoError(t, err)
	missing, err := fresh.Reference("Author", testutil.Key(99))
	require.NoError(t, err)

	require.NoError(t, fresh.Prefetch(ctx, "Post"))
	deleted, err = fresh.IsDeleted(gone)
	require.NoError(t, err)
	assert.True(t, deleted)
	stored, err := fresh.IsStored(kept)
	require.NoError(t, err)
	assert.True(t, stored)
	assert.Equal(t, "Analytical engine", kept.Value("title"))

	// Only Post was fetched; the author reference is still pending.
	st, err := fresh.State(missing)
	require.NoError(t, err)
	assert.Equal(t, record.TaskFetch, st.Task)

	require.NoError(t, fresh.Prefetch(ctx))
	deleted, err = fresh.IsDeleted(missing)
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestCompositeKey(t *testing.T) {
	ctx := context.Background()
	m, conn := openManager(t)
	_, posts := seedPosts(t, m)

	for i, name := range []string{"go", "sql", "orm"} {
		require.NoError(t, m.Persist(record.New("Tag").Set("post", posts[0]).Set("name", name).Set("weight", i)))
	}
	require.NoError(t, m.Persist(record.New("Tag").Set("post", posts[1]).Set("name", "go").Set("weight", 9)))
	require.NoError(t, m.Flush(ctx))

	fresh := attachManager(t, conn)
	post, err := fresh.Reference("Post", mustID(t, m, posts[0]))
	require.NoError(t, err)

	tag, err := fresh.Reference("Tag", map[string]any{"post": post, "name": "sql"})
	require.NoError(t, err)
	require.NoError(t, fresh.Prefetch(ctx, tag))
	assert.Equal(t, int64(1), tag.Value("weight"))

	tag.Set("weight", 5)
	require.NoError(t, fresh.Persist(tag))
	dropped, err := fresh.Reference("Tag", map[string]any{"post": post, "name": "orm"})
	require.NoError(t, err)
	require.NoError(t, fresh.Remove(dropped))
	require.NoError(t, fresh.Flush(ctx))

	check := attachManager(t, conn)
	checkPost, err := check.Reference("Post", mustID(t, m, posts[0]))
	require.NoError(t, err)
	found, err := check.FindAll(ctx, "Tag", orm.Where("post", "=", checkPost), 0, orm.Asc("name"))
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "go", found[0].Value("name"))
	assert.Equal(t, "sql", found[1].Value("name"))
	assert.Equal(t, int64(5), found[1].Value("weight"))
}

func TestFetchRelation(t *testing.T) {
	ctx := context.Background()
	m, conn := openManager(t)
	author, _ := seedPosts(t, m)

	lonely := record.New("Author").Set("name", "grace")
	require.NoError(t, m.Persist(lonely))
	require.NoError(t, m.Flush(ctx))

	fresh := attachManager(t, conn)
	authors, err := fresh.FindAll(ctx, "Author", orm.Cond{}, 0, orm.Asc("name"))
	require.NoError(t, err)
	require.Len(t, authors, 2)
	null, err := fresh.NullReference("Author")
	require.NoError(t, err)

	repo, err := fresh.Repository("Author")
	require.NoError(t, err)
	byTitle := func(a, b *record.Entity) bool {
		return a.Value("title").(string) < b.Value("title").(string)
	}
	related, err := repo.FetchRelation(ctx, append(authors, null), "posts", "Post", "author", byTitle)
	require.NoError(t, err)
	assert.Len(t, related, 3)

	ada := authors[0]
	assert.Equal(t, mustID(t, m, author), mustID(t, fresh, ada))
	posts := ada.Value("posts").([]*record.Entity)
	require.Len(t, posts, 3)
	assert.Equal(t, "Analytical engine", posts[0].Value("title"))
	assert.Equal(t, "Notes", posts[2].Value("title"))

	assert.Empty(t, authors[1].Value("posts"))
	assert.False(t, null.Has("posts"))

	// Records with the property already set are skipped.
	related, err = repo.FetchRelation(ctx, authors, "posts", "Post", "author", nil)
	require.NoError(t, err)
	assert.Nil(t, related)
}

func TestReadsInsideTransaction(t *testing.T) {
	ctx := context.Background()
	m, conn := openManager(t)
	author, posts := seedPosts(t, m)

	fresh := attachManager(t, conn)
	require.NoError(t, fresh.Begin(ctx, "Author"))
	defer fresh.Rollback("Author")

	ada, err := fresh.Reference("Author", mustID(t, m, author))
	require.NoError(t, err)
	missing, err := fresh.Reference("Author", testutil.Key(99))
	require.NoError(t, err)

	require.NoError(t, fresh.Prefetch(ctx, ada, missing))
	stored, err := fresh.IsStored(ada)
	require.NoError(t, err)
	assert.True(t, stored)
	assert.Equal(t, "ada", ada.Value("name"))
	deleted, err := fresh.IsDeleted(missing)
	require.NoError(t, err)
	assert.True(t, deleted)

	found, err := fresh.FindAll(ctx, "Post", orm.Where("author", "=", ada), 0, orm.Asc("title"))
	require.NoError(t, err)
	require.Len(t, found, len(posts))
	assert.Equal(t, "Analytical engine", found[0].Value("title"))

	repo, err := fresh.Repository("Author")
	require.NoError(t, err)
	related, err := repo.FetchRelation(ctx, []*record.Entity{ada}, "posts", "Post", "author", nil)
	require.NoError(t, err)
	assert.Len(t, related, len(posts))
}

func TestFlush_RollbackLeavesDatabaseUnchanged(t *testing.T) {
	ctx := context.Background()
	m, conn := openManager(t)

	m.PushListener(orm.ListenerFuncs{
		On: func(context.Context, *orm.Manager, *orm.SyncData) error {
			return errors.New("veto")
		},
	})
	author := record.New("Author").Set("name", "ada")
	require.NoError(t, m.Persist(author))
	require.Error(t, m.Flush(ctx))

	fresh := attachManager(t, conn)
	found, err := fresh.FindAll(ctx, "Author", orm.Cond{}, 0)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func mustID(t *testing.T, m *orm.Manager, e *record.Entity) string {
	t.Helper()
	id, err := m.ReferenceID(e)
	require.NoError(t, err)
	return id
}
