package keyring

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

type (
	// Control is the handle to a keyring database, the sqlite file
	// that keeps users, their authorities and the persistent logins
	// used by remember-me authentication.
	Control struct {
		db        *sql.DB
		writeable bool
	}

	User struct {
		Username    string
		Password    string
		Enabled     bool
		Authorities []string
	}

	// Login is one row of persistent_logins, the current link
	// of a remember-me chain.
	Login struct {
		Series    string
		TokenHash string
		Username  string
		LastUsed  time.Time
	}

	// Verdict tells UpdateLogin what to do with the row after
	// the callback inspected it.
	Verdict byte
)

const (
	// Keep leaves the row untouched
	Keep Verdict = iota
	// Save writes the TokenHash and LastUsed set by the callback
	Save
	// Discard deletes the row
	Discard
)

//go:embed migrations/*.sql
var migrations embed.FS

type (
	tableSchema struct {
		columns    []string
		primaryKey []string
		unique     [][]string
	}
)

var (
	requiredSchema = map[string]tableSchema{
		"users": {
			columns:    []string{"username", "password", "enabled"},
			primaryKey: []string{"username"},
		},
		"authorities": {
			columns: []string{"username", "authority"},
			unique:  [][]string{{"username", "authority"}},
		},
		"persistent_logins": {
			columns:    []string{"series", "token_hash", "username", "last_used"},
			primaryKey: []string{"series"},
		},
	}
)

func openKeyringDatabase(ctx context.Context, file string, readwrite bool) (*sql.DB, error) {
	if readwrite {
		err := os.MkdirAll(filepath.Dir(file), 0755)
		if err != nil {
			return nil, fmt.Errorf("unable to create directory to store keyring %v, cause %w", file, err)
		}
	}
	var connstr string
	if readwrite {
		// immediate transactions take the write lock on BEGIN, which serializes
		// every read-modify-write done by UpdateLogin
		connstr = fmt.Sprintf("file:%v?_txlock=immediate&_busy_timeout=5000&_journal=wal&_foreign_keys=on&mode=rwc", file)
	} else {
		connstr = fmt.Sprintf("file:%v?_busy_timeout=5000&_foreign_keys=on&mode=ro", file)
	}
	conn, err := sql.Open("sqlite3", connstr)
	if err != nil {
		return nil, fmt.Errorf("unable to open %v, cause %w", file, err)
	}
	err = conn.PingContext(ctx)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("unable to ping keyring %v, cause %w", file, err)
	}
	return conn, nil
}

// Open loads the keyring stored at file. When readwrite is true the file
// is created if needed and pending migrations are applied.
func Open(ctx context.Context, file string, readwrite bool) (*Control, error) {
	conn, err := openKeyringDatabase(ctx, file, readwrite)
	if err != nil {
		return nil, err
	}
	c := &Control{db: conn, writeable: readwrite}
	if readwrite {
		err = c.migrate(ctx)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("unable to migrate keyring %v, cause %w", file, err)
		}
	}
	err = c.checkSchema(ctx)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *Control) migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, c.db, fsys)
	if err != nil {
		return err
	}
	_, err = provider.Up(ctx)
	return err
}

func (c *Control) checkSchema(ctx context.Context) error {
	for table, schema := range requiredSchema {
		td, err := c.Describe(ctx, table)
		if errors.Is(err, sql.ErrNoRows) {
			return SchemaMismatch{Table: table}
		} else if err != nil {
			return fmt.Errorf("unable to inspect table %v, cause %w", table, err)
		}
		for _, col := range schema.columns {
			if !td.HasColumn(col) {
				return SchemaMismatch{Table: table, Column: col}
			}
		}
		// series and username lookups rely on these being unique
		if len(schema.primaryKey) > 0 && !sameColumns(td.PrimaryKey, schema.primaryKey) {
			return SchemaMismatch{Table: table, Constraint: fmt.Sprintf("primary key (%v)", strings.Join(schema.primaryKey, ", "))}
		}
		for _, cols := range schema.unique {
			if !td.HasUnique(cols...) {
				return SchemaMismatch{Table: table, Constraint: fmt.Sprintf("unique (%v)", strings.Join(cols, ", "))}
			}
		}
	}
	return nil
}

func (c *Control) FindUser(ctx context.Context, username string) (User, error) {
	u := User{Username: username}
	err := c.db.QueryRowContext(ctx, `select password, enabled from users where username = ?`, username).Scan(&u.Password, &u.Enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, UserNotFound{Username: username}
	} else if err != nil {
		return User{}, fmt.Errorf("unable to load user %v from keyring, cause %w", username, err)
	}
	rows, err := c.db.QueryContext(ctx, `select authority from authorities where username = ? order by authority asc`, username)
	if err != nil {
		return User{}, fmt.Errorf("unable to load authorities of %v, cause %w", username, err)
	}
	defer rows.Close()
	for rows.Next() {
		var authority string
		err = rows.Scan(&authority)
		if err != nil {
			return User{}, fmt.Errorf("unable to scan authority of %v, cause %w", username, err)
		}
		u.Authorities = append(u.Authorities, authority)
	}
	return u, rows.Err()
}

// PutUser creates or replaces the user, including its authorities.
func (c *Control) PutUser(ctx context.Context, u User) error {
	if !c.writeable {
		return ReadOnly{}
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("unable to start transaction, cause %w", err)
	}
	defer tx.Rollback()
	_, err = tx.ExecContext(ctx, `insert into users(username, password, enabled) values (?, ?, ?)
		on conflict (username) do update set password = excluded.password, enabled = excluded.enabled`,
		u.Username, u.Password, u.Enabled)
	if err != nil {
		return fmt.Errorf("unable to store user %v, cause %w", u.Username, err)
	}
	_, err = tx.ExecContext(ctx, `delete from authorities where username = ?`, u.Username)
	if err != nil {
		return fmt.Errorf("unable to reset authorities of %v, cause %w", u.Username, err)
	}
	authorities := append([]string(nil), u.Authorities...)
	sort.Strings(authorities)
	for _, a := range authorities {
		_, err = tx.ExecContext(ctx, `insert into authorities(username, authority) values (?, ?) on conflict do nothing`, u.Username, a)
		if err != nil {
			return fmt.Errorf("unable to grant %v to %v, cause %w", a, u.Username, err)
		}
	}
	return tx.Commit()
}

func (c *Control) SetEnabled(ctx context.Context, username string, enabled bool) error {
	if !c.writeable {
		return ReadOnly{}
	}
	res, err := c.db.ExecContext(ctx, `update users set enabled = ? where username = ?`, enabled, username)
	if err != nil {
		return fmt.Errorf("unable to change state of user %v, cause %w", username, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return UserNotFound{Username: username}
	}
	return nil
}

func (c *Control) CreateLogin(ctx context.Context, l Login) error {
	if !c.writeable {
		return ReadOnly{}
	}
	_, err := c.db.ExecContext(ctx, `insert into persistent_logins(series, token_hash, username, last_used) values (?, ?, ?, ?)`,
		l.Series, l.TokenHash, l.Username, l.LastUsed.UnixMilli())
	if err != nil {
		return fmt.Errorf("unable to store persistent login for %v, cause %w", l.Username, err)
	}
	return nil
}

// UpdateLogin loads the row for series and hands it to fn inside a single
// write transaction. The verdict returned by fn is applied before commit,
// even when fn also returns an error; that error is then returned as-is.
//
// LoginNotFound is returned if the series does not exist.
func (c *Control) UpdateLogin(ctx context.Context, series string, fn func(*Login) (Verdict, error)) error {
	if !c.writeable {
		return ReadOnly{}
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("unable to start transaction, cause %w", err)
	}
	defer tx.Rollback()

	l := Login{Series: series}
	var lastUsed int64
	err = tx.QueryRowContext(ctx, `select token_hash, username, last_used from persistent_logins where series = ?`, series).
		Scan(&l.TokenHash, &l.Username, &lastUsed)
	if errors.Is(err, sql.ErrNoRows) {
		return LoginNotFound{Series: series}
	} else if err != nil {
		return fmt.Errorf("unable to load persistent login, cause %w", err)
	}
	l.LastUsed = time.UnixMilli(lastUsed).UTC()

	verdict, fnErr := fn(&l)
	switch verdict {
	case Keep:
		return fnErr
	case Save:
		_, err = tx.ExecContext(ctx, `update persistent_logins set token_hash = ?, last_used = ? where series = ?`,
			l.TokenHash, l.LastUsed.UnixMilli(), series)
	case Discard:
		_, err = tx.ExecContext(ctx, `delete from persistent_logins where series = ?`, series)
	default:
		return fmt.Errorf("invalid verdict %v for persistent login", verdict)
	}
	if err != nil {
		return fmt.Errorf("unable to apply verdict %v to persistent login, cause %w", verdict, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("unable to commit persistent login, cause %w", err)
	}
	return fnErr
}

// DeleteLogin removes the series and reports whether it existed.
func (c *Control) DeleteLogin(ctx context.Context, series string) (bool, error) {
	if !c.writeable {
		return false, ReadOnly{}
	}
	res, err := c.db.ExecContext(ctx, `delete from persistent_logins where series = ?`, series)
	if err != nil {
		return false, fmt.Errorf("unable to delete persistent login, cause %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (c *Control) DeleteUserLogins(ctx context.Context, username string) (int, error) {
	return c.deleteLogins(ctx, `delete from persistent_logins where username = ?`, username)
}

// PurgeLogins removes every login last used before the given instant.
func (c *Control) PurgeLogins(ctx context.Context, before time.Time) (int, error) {
	return c.deleteLogins(ctx, `delete from persistent_logins where last_used < ?`, before.UnixMilli())
}

func (c *Control) deleteLogins(ctx context.Context, query string, args ...interface{}) (int, error) {
	if !c.writeable {
		return 0, ReadOnly{}
	}
	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("unable to delete persistent logins, cause %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("unable to count deleted persistent logins, cause %w", err)
	}
	return int(n), nil
}

func (c *Control) ListLogins(ctx context.Context, username string) ([]Login, error) {
	rows, err := c.db.QueryContext(ctx, `select series, token_hash, username, last_used from persistent_logins
		where username = ? order by last_used desc, series asc`, username)
	if err != nil {
		return nil, fmt.Errorf("unable to list persistent logins of %v, cause %w", username, err)
	}
	defer rows.Close()
	var out []Login
	for rows.Next() {
		var l Login
		var lastUsed int64
		err = rows.Scan(&l.Series, &l.TokenHash, &l.Username, &lastUsed)
		if err != nil {
			return nil, fmt.Errorf("unable to scan persistent login, cause %w", err)
		}
		l.LastUsed = time.UnixMilli(lastUsed).UTC()
		out = append(out, l)
	}
	return out, rows.Err()
}

func (c *Control) Close() error {
	return c.db.Close()
}
