package query

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/blazeorm/internal/codec"
	"github.com/roach88/blazeorm/internal/meta"
	"github.com/roach88/blazeorm/internal/store"
)

var created = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// createTestDB opens a database holding three items and returns query hooks
// backed by a codec.
func createTestDB(t *testing.T) (*store.Conn, Hooks) {
	t.Helper()
	ctx := context.Background()

	conn, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	_, err = conn.ExecContext(ctx, `CREATE TABLE items (
		id int NOT NULL PRIMARY KEY,
		name varchar(20) NOT NULL,
		active tinyint NOT NULL,
		created datetime NOT NULL
	)`)
	require.NoError(t, err)

	reg, err := meta.NewRegistry()
	require.NoError(t, err)
	c := codec.New(reg, nil)
	hooks := Hooks{EncodeParam: c.EncodeParam, Decoder: c.Decoder}

	for i, name := range []string{"alpha", "beta", "gamma"} {
		_, err := New(conn, "INSERT INTO items VALUES (?, ?, ?, ?)", hooks).
			Bind(i+1, name, i%2 == 0, created).
			Exec(ctx)
		require.NoError(t, err)
	}
	return conn, hooks
}

func TestSetParam_ListExpansion(t *testing.T) {
	ctx := context.Background()
	conn, hooks := createTestDB(t)

	q := New(conn, "SELECT name FROM items WHERE id IN (:ids) AND name != :skip ORDER BY id", hooks).
		SetParam("ids", []int{1, 2, 3}).
		SetParam(":skip", "beta")
	assert.Equal(t, "SELECT name FROM items WHERE id IN (:ap_1,:ap_2,:ap_3) AND name != :skip ORDER BY id", q.SQL())

	args, err := q.args()
	require.NoError(t, err)
	assert.Len(t, args, 4)

	rows, err := q.All(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "alpha", rows[0]["name"])
	assert.Equal(t, "gamma", rows[1]["name"])
}

func TestSetParam_EmptyList(t *testing.T) {
	ctx := context.Background()
	conn, hooks := createTestDB(t)

	rows, err := New(conn, "SELECT id FROM items WHERE id IN (:ids)", hooks).SetParam("ids", []int{}).All(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = New(conn, "SELECT id FROM items WHERE id NOT IN (:ids)", hooks).SetParam("ids", []int{}).All(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestParamErrors(t *testing.T) {
	ctx := context.Background()
	conn, hooks := createTestDB(t)

	_, err := New(conn, "SELECT * FROM items WHERE id IN (?)", hooks).Bind([]int{1, 2}).All(ctx)
	assert.True(t, errors.Is(err, ErrListParam))

	_, err = New(conn, "SELECT * FROM items WHERE id IN (:ids)", hooks).SetParam("ids", []any{[]int{1}}).All(ctx)
	assert.True(t, errors.Is(err, ErrListParam))

	_, err = New(conn, "SELECT * FROM items WHERE id = ? AND name = :n", hooks).Bind(1).SetParam("n", "x").All(ctx)
	assert.True(t, errors.Is(err, ErrMixedParams))
}

func TestRows_RestartablePerCall(t *testing.T) {
	ctx := context.Background()
	conn, hooks := createTestDB(t)
	q := New(conn, "SELECT id FROM items ORDER BY id", hooks)

	collect := func() []any {
		var ids []any
		for row, err := range q.Rows(ctx) {
			require.NoError(t, err)
			ids = append(ids, row["id"])
		}
		return ids
	}
	first := collect()
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, first)
	assert.Equal(t, first, collect())

	// Breaking out early releases the connection for the next statement.
	for range q.Rows(ctx) {
		break
	}
	n, err := New(conn, "SELECT COUNT(*) FROM items", hooks).Cell(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestRows_Decoders(t *testing.T) {
	ctx := context.Background()
	conn, hooks := createTestDB(t)

	active := &meta.Field{Name: "active", Types: []meta.Type{meta.Bool}}
	row, err := New(conn, "SELECT * FROM items WHERE id = ?", hooks).
		Bind(1).
		SetFieldTypes(active).
		SetDecoder("created", meta.Time).
		Row(ctx)
	require.NoError(t, err)

	assert.Equal(t, Row{"active": true, "created": created}, row)
}

func TestRow_Empty(t *testing.T) {
	ctx := context.Background()
	conn, hooks := createTestDB(t)

	row, err := New(conn, "SELECT * FROM items WHERE id = ?", hooks).Bind(99).Row(ctx)
	require.NoError(t, err)
	assert.Nil(t, row)

	cell, err := New(conn, "SELECT name FROM items WHERE id = ?", hooks).Bind(99).Cell(ctx)
	require.NoError(t, err)
	assert.Nil(t, cell)
}

func TestCell_WithDecoder(t *testing.T) {
	ctx := context.Background()
	conn, hooks := createTestDB(t)

	cell, err := New(conn, "SELECT active FROM items WHERE id = ?", hooks).
		Bind(2).
		SetDecoder("active", meta.Bool).
		Cell(ctx)
	require.NoError(t, err)
	assert.Equal(t, false, cell)
}

func TestExec_RowsAffected(t *testing.T) {
	ctx := context.Background()
	conn, hooks := createTestDB(t)

	n, err := New(conn, "UPDATE items SET active = ? WHERE id > ?", hooks).Bind(true, 1).Exec(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestMap(t *testing.T) {
	ctx := context.Background()
	conn, hooks := createTestDB(t)

	type item struct {
		idx    int
		name   string
		active bool
		raw    Row
	}

	q := New(conn, "SELECT * FROM items ORDER BY id", hooks).SetDecoder("name", meta.String)
	items, err := Map(ctx, q,
		[]Binding{Bind(IndexParam), Bind("name"), Bind("active", meta.Bool), Bind(RowParam)},
		func(v Values) (item, error) {
			return item{idx: v.Index(), name: v.String("name"), active: v["active"].(bool), raw: v.Row()}, nil
		},
	)
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, 0, items[0].idx)
	assert.Equal(t, "alpha", items[0].name)
	assert.True(t, items[0].active)
	assert.Equal(t, 2, items[2].idx)
	assert.False(t, items[1].active)
	assert.Equal(t, int64(2), items[1].raw["id"])
}

func TestMap_CallbackError(t *testing.T) {
	ctx := context.Background()
	conn, hooks := createTestDB(t)
	boom := errors.New("boom")

	_, err := Map(ctx, New(conn, "SELECT * FROM items", hooks), []Binding{Bind("id")},
		func(Values) (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
}

func TestFragments(t *testing.T) {
	f := Group(" AND ", Fragment{SQL: "a = ?", Args: []any{1}}, Fragment{}, Fragment{SQL: "b = ?", Args: []any{2}})
	assert.Equal(t, "(a = ? AND b = ?)", f.SQL)
	assert.Equal(t, []any{1, 2}, f.Args)

	single := Group(" OR ", Fragment{SQL: "a = ?", Args: []any{1}})
	assert.Equal(t, "a = ?", single.SQL)

	assert.Equal(t, `"we""ird"`, QuoteIdent(`we"ird`))
}
