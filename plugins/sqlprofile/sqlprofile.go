// Package sqlprofile provides a userjs post-processor that adds profile
// columns from a SQL database to the user's fields.
//
// The query is run with a single argument, the value at a path on the user
// (by default `subject`), and the first row's columns are merged into the
// output:
//
//	db, _ := sqlprofile.Open("sqlite3", "file:profiles.db")
//	sqlprofile.Register("profile", db,
//		"SELECT display_name, avatar FROM profiles WHERE subject = ?")
//
// Then name it in userjs.yaml:
//
//	userjs:
//	  postProcessors: [profile]
//
// Postgres connections use `$1` placeholders, sqlite `?`. Queries are passed to
// the driver as written.
package sqlprofile

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/dpup/userjs"
	"github.com/dpup/userjs/errors"
	"github.com/dpup/userjs/logging"
	"github.com/lib/pq"
	"google.golang.org/grpc/codes"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultArgPath is the user path the query argument is read from.
const DefaultArgPath = "subject"

const defaultTimeout = 2 * time.Second

var (
	// ErrNoArgument is returned when the user has no value at the argument path.
	ErrNoArgument = errors.NewC("sqlprofile: user has no value for the query argument", codes.FailedPrecondition)

	// ErrQuery is returned when the profile query fails.
	ErrQuery = errors.NewC("sqlprofile: query failed", codes.Internal)

	// ErrUnavailable is returned when the database can't be reached.
	ErrUnavailable = errors.NewC("sqlprofile: database unavailable", codes.Unavailable)
)

// Option is a functional option for configuring the post-processor.
type Option func(*profile)

// WithArgPath sets the path on the user, in userjs path syntax, that the
// query argument is read from.
func WithArgPath(path string) Option {
	return func(p *profile) {
		p.argPath = path
	}
}

// WithUserSource sets where the user comes from. Defaults to
// userjs.ContextUserSource.
func WithUserSource(src userjs.UserSource) Option {
	return func(p *profile) {
		p.source = src
	}
}

// WithTimeout bounds how long the query may run.
func WithTimeout(d time.Duration) Option {
	return func(p *profile) {
		p.timeout = d
	}
}

// Open opens a database and checks that it can be reached. Supported drivers
// are `sqlite3` and `postgres`.
func Open(driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.WrapPrefix(err, "sqlprofile: failed to open "+driver+" connection", 0)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Mark(ErrUnavailable, 0).Append(err.Error())
	}
	return db, nil
}

// New returns a post-processor that merges the first row returned by query
// into the user's fields. Anonymous users, and users without a matching row,
// get no extra fields.
func New(db *sql.DB, query string, opts ...Option) userjs.PostProcessor {
	return newProfile(db, query, opts...).process
}

// Register creates a post-processor with New and registers it with userjs
// under name, so config can refer to it.
func Register(name string, db *sql.DB, query string, opts ...Option) {
	userjs.RegisterPostProcessor(name, New(db, query, opts...))
}

func newProfile(db *sql.DB, query string, opts ...Option) *profile {
	p := &profile{
		db:      db,
		query:   query,
		argPath: DefaultArgPath,
		source:  userjs.ContextUserSource,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type profile struct {
	db      *sql.DB
	query   string
	argPath string
	source  userjs.UserSource
	timeout time.Duration
}

func (p *profile) process(r *http.Request) (userjs.Fields, error) {
	u, err := p.source(r)
	if err != nil {
		return nil, err
	}
	if u == nil || !u.IsAuthenticated() {
		return nil, nil
	}

	arg := userjs.FieldValue(u, p.argPath)
	if arg == userjs.Absent || arg == nil {
		return nil, errors.Mark(ErrNoArgument, 0).Append(p.argPath)
	}

	ctx := r.Context()
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	fields, err := p.queryRow(ctx, arg)
	if err != nil {
		// Drivers report timeouts in their own way, the context is authoritative.
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errors.Wrap(ctx.Err(), 0).WithCode(codes.DeadlineExceeded)
		}
		return nil, translateError(err)
	}
	logging.Track(r.Context(), "sqlprofile.columns", len(fields))
	return fields, nil
}

func (p *profile) queryRow(ctx context.Context, arg any) (userjs.Fields, error) {
	rows, err := p.db.QueryContext(ctx, p.query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}

	fields := make(userjs.Fields, len(cols))
	for i, col := range cols {
		// Text columns come back as bytes from most drivers.
		if b, ok := values[i].([]byte); ok {
			fields[col] = string(b)
		} else {
			fields[col] = values[i]
		}
	}
	return fields, nil
}

func translateError(err error) error {
	if errors.Is(err, sql.ErrConnDone) {
		return errors.Mark(ErrUnavailable, 0)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// Class 08 is connection exceptions.
		if pqErr.Code.Class() == "08" {
			return errors.Mark(ErrUnavailable, 0).Append(pqErr.Message)
		}
		return errors.Mark(ErrQuery, 0).Append(string(pqErr.Code.Name()) + ": " + pqErr.Message)
	}
	return errors.Mark(ErrQuery, 0).Append(err.Error())
}
