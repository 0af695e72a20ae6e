package keyring

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadTableInfo(t *testing.T) {
	ctx := context.Background()
	c, cleanup := tempKeyring(ctx, t, "test")
	defer cleanup()

	td, err := loadTableDef(ctx, c.db, "persistent_logins")
	require.NoError(t, err)

	require.Equal(t, "persistent_logins", td.Name)
	require.Equal(t, []ColumnDef{
		{Name: "last_used", Datatype: "INTEGER"},
		{Name: "series", Datatype: "TEXT"},
		{Name: "token_hash", Datatype: "TEXT"},
		{Name: "username", Datatype: "TEXT"},
	}, td.Columns)
	require.Equal(t, []string{"series"}, td.PrimaryKey)
	require.Len(t, td.Unique, 1)
	require.Equal(t, []string{"series"}, td.Unique[0].Columns)
}

func TestDescribe(t *testing.T) {
	ctx := context.Background()
	c, cleanup := tempKeyring(ctx, t, "test")
	defer cleanup()

	td, err := c.Describe(ctx, "authorities")
	require.NoError(t, err)
	require.True(t, td.HasColumn("AUTHORITY"))
	require.Equal(t, []UniqueDef{
		{Name: "uidx_authorities_username_authority", Columns: []string{"authority", "username"}},
	}, td.Unique)

	_, err = c.Describe(ctx, "remember_me")
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestHasUnique(t *testing.T) {
	td := TableDef{Unique: []UniqueDef{{Name: "idx", Columns: []string{"authority", "username"}}}}
	require.True(t, td.HasUnique("username", "authority"))
	require.True(t, td.HasUnique("AUTHORITY", "username"))
	require.False(t, td.HasUnique("username"))
	require.False(t, td.HasUnique("username", "authority", "enabled"))
}

func TestOpenChecksConstraints(t *testing.T) {
	users := `create table users(username text not null primary key, password text not null, enabled integer not null default 1)`
	authorities := `create table authorities(username text not null, authority text not null)`
	uniqueAuthorities := `create unique index uidx_authorities on authorities(authority, username)`
	logins := `create table persistent_logins(series text not null primary key, token_hash text not null, username text not null, last_used integer not null)`
	loginsNoKey := `create table persistent_logins(series text not null, token_hash text not null, username text not null, last_used integer not null)`

	for _, tc := range []struct {
		name     string
		ddl      []string
		expected error
	}{
		{"valid", []string{users, authorities, uniqueAuthorities, logins}, nil},
		{"series without primary key", []string{users, authorities, uniqueAuthorities, loginsNoKey},
			SchemaMismatch{Table: "persistent_logins", Constraint: "primary key (series)"}},
		{"authorities without unique index", []string{users, authorities, logins},
			SchemaMismatch{Table: "authorities", Constraint: "unique (username, authority)"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			file := filepath.Join(t.TempDir(), "keyring.db")
			db, err := sql.Open("sqlite3", file)
			require.NoError(t, err)
			for _, stmt := range tc.ddl {
				_, err = db.ExecContext(ctx, stmt)
				require.NoError(t, err)
			}
			require.NoError(t, db.Close())
			_, err = os.Stat(file)
			require.NoError(t, err)

			c, err := Open(ctx, file, false)
			if tc.expected == nil {
				require.NoError(t, err)
				require.NoError(t, c.Close())
				return
			}
			require.ErrorIs(t, err, tc.expected)
		})
	}
}
