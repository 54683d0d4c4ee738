package testutil

import (
	"github.com/roach88/blazeorm/internal/meta"
)

// Enums of the test schema.
var (
	Status   = meta.MustEnum(meta.NewEnum("Status", "draft", "published", "archived"))
	Priority = meta.MustEnum(meta.NewBackedEnum("Priority", []string{"low", "high"}, []any{1, 10}))
)

// Registry returns a fresh registry holding the test schema:
//
//   - Author: reference record type with an implicit id.
//   - Post: reference record type with an author reference, enum, json
//     and union-typed fields.
//   - Tag: natural composite key (post, name).
//   - Setting: natural single string key with a union-typed value.
func Registry() *meta.Registry {
	author := meta.NewRecord("Author", "authors").
		Field("name", []meta.Type{meta.String}, meta.Indexed()).
		Field("email", []meta.Type{meta.String}).
		Field("born", []meta.Type{meta.Time}).
		Index("contact", false, "email", "name").
		MustBuild()

	post := meta.NewRecord("Post", "posts").
		Field("title", []meta.Type{meta.String}, meta.Length(200)).
		Field("author", []meta.Type{meta.Ref("Author")}, meta.Indexed()).
		Field("status", []meta.Type{meta.EnumType(Status)}).
		Field("priority", []meta.Type{meta.Null, meta.EnumType(Priority)}).
		Field("rating", []meta.Type{meta.Null, meta.Float}).
		Field("meta", []meta.Type{meta.JSON}).
		Field("published", []meta.Type{meta.Time}).
		MustBuild()

	tag := meta.NewRecord("Tag", "tags").
		Field("post", []meta.Type{meta.Ref("Post")}, meta.Primary()).
		Field("name", []meta.Type{meta.String}, meta.Primary(), meta.Length(40)).
		Field("weight", []meta.Type{meta.Int}).
		MustBuild()

	setting := meta.NewRecord("Setting", "settings").
		Field("key", []meta.Type{meta.String}, meta.Primary(), meta.Length(64)).
		Field("value", []meta.Type{meta.Null, meta.String, meta.Int, meta.Bool, meta.Time}).
		MustBuild()

	reg, err := meta.NewRegistry(author, post, tag, setting)
	if err != nil {
		panic(err)
	}
	return reg
}
