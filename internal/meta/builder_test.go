package meta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_ImplicitReferenceKey(t *testing.T) {
	rec, err := NewRecord("User", "users").
		Field("name", []Type{String}).
		Build()
	require.NoError(t, err)

	require.Len(t, rec.Fields, 2)
	assert.Equal(t, "id", rec.Fields[0].Name)
	assert.Equal(t, []Type{Ref("User")}, rec.Fields[0].Types)
	assert.True(t, rec.IsReference)
	assert.Equal(t, "id", rec.ReferenceField)
	require.NotNil(t, rec.PrimaryKey)
	assert.Equal(t, PrimaryIndex, rec.PrimaryKey.Name)
	assert.Equal(t, []string{"id"}, rec.PrimaryKey.Fields)
	assert.Same(t, rec.PrimaryKey, rec.Indexes[0])

	assert.Equal(t, 5000, rec.FetchBatchLimit)
	assert.Equal(t, 5000, rec.DeleteBatchLimit)
	assert.Equal(t, 5000, rec.InsertBatchLimit)
}

func TestBuild_SelfTypedPrimaryKey(t *testing.T) {
	rec, err := NewRecord("Doc", "docs").
		Field("uid", []Type{Self}, Primary()).
		Field("title", []Type{String}).
		Build()
	require.NoError(t, err)

	assert.True(t, rec.IsReference)
	assert.Equal(t, "uid", rec.ReferenceField)
	assert.Len(t, rec.Fields, 2)
}

func TestBuild_CompositeKey(t *testing.T) {
	rec, err := NewRecord("Membership", "memberships").
		Field("group", []Type{String}, Primary()).
		Field("member", []Type{Int}, Primary()).
		Field("role", []Type{String}, Indexed()).
		Build()
	require.NoError(t, err)

	assert.False(t, rec.IsReference)
	assert.Empty(t, rec.ReferenceField)
	assert.Equal(t, []string{"group", "member"}, rec.PrimaryKey.Fields)
	assert.Equal(t, 200, rec.FetchBatchLimit)
	assert.Equal(t, 200, rec.DeleteBatchLimit)
	assert.Equal(t, 5000, rec.InsertBatchLimit)

	require.Len(t, rec.Indexes, 2)
	assert.Equal(t, "by_role", rec.Indexes[1].Name)
	assert.False(t, rec.Indexes[1].Unique)

	assert.True(t, rec.IsPrimaryField("member"))
	assert.False(t, rec.IsPrimaryField("role"))
	pk := rec.PrimaryFields()
	require.Len(t, pk, 2)
	assert.Equal(t, "group", pk[0].Name)
}

func TestBuild_FirstUniqueIndexIsPrimaryKey(t *testing.T) {
	rec, err := NewRecord("Setting", "settings").
		Index("uniq_name", true, "name").
		Field("name", []Type{String}).
		Field("value", []Type{String}).
		Build()
	require.NoError(t, err)

	assert.Equal(t, "uniq_name", rec.PrimaryKey.Name)
	assert.False(t, rec.IsReference)
	assert.Len(t, rec.Fields, 2)
}

func TestBuild_TypeOrderingAndDedup(t *testing.T) {
	color := MustEnum(NewEnum("Color", "red", "green"))
	rec, err := NewRecord("Thing", "things").
		Field("value", []Type{Ref("Other"), EnumType(color), Int, Null, Int, JSON, String}).
		Build()
	require.NoError(t, err)

	f, ok := rec.Field("value")
	require.True(t, ok)
	assert.Equal(t, []string{"int", "null", "string", "Other", "Color", "json"}, f.TypeNames())
	assert.True(t, f.Composite())
	assert.Equal(t, DefaultLength, f.Length)
}

func TestBuild_BatchLimitOverride(t *testing.T) {
	rec, err := NewRecord("Event", "events").
		Field("name", []Type{String}).
		BatchLimits(10, 0, 3).
		Build()
	require.NoError(t, err)

	assert.Equal(t, 10, rec.FetchBatchLimit)
	assert.Equal(t, 5000, rec.InsertBatchLimit)
	assert.Equal(t, 3, rec.DeleteBatchLimit)
}

func TestBuild_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		builder *Builder
		want    string
	}{
		{
			name:    "missing table",
			builder: NewRecord("A", ""),
			want:    "table is required",
		},
		{
			name:    "duplicate field",
			builder: NewRecord("A", "a").Field("x", []Type{Int}).Field("x", []Type{String}),
			want:    "duplicate field",
		},
		{
			name:    "field without types",
			builder: NewRecord("A", "a").Field("x", nil),
			want:    "at least one type",
		},
		{
			name:    "index on unknown field",
			builder: NewRecord("A", "a").Field("x", []Type{Int}).Index("idx", false, "y"),
			want:    "unknown field",
		},
		{
			name:    "implicit key collides",
			builder: NewRecord("A", "a").Field("id", []Type{Int}),
			want:    "already declared",
		},
		{
			name:    "enum without definition",
			builder: NewRecord("A", "a").Field("x", []Type{{Kind: KindEnum, Name: "Ghost"}}),
			want:    "no definition",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.builder.Build()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestRecordClone(t *testing.T) {
	rec := NewRecord("User", "users").Field("name", []Type{String}, Indexed()).MustBuild()
	clone := rec.Clone()

	f, _ := clone.Field("name")
	f.Columns = []*Column{{Name: "name", DDL: "varchar(120)"}}
	clone.PrimaryKey.Columns = []string{"id"}

	orig, _ := rec.Field("name")
	assert.Empty(t, orig.Columns)
	assert.Empty(t, rec.PrimaryKey.Columns)
	assert.Same(t, clone.PrimaryKey, clone.Indexes[0])
	assert.NotSame(t, rec.PrimaryKey, clone.PrimaryKey)
}
