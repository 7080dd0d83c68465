// Package server assembles the credential lifecycle subsystem: the database,
// the managers in the access package, the expiry sweeper, and the metrics
// listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/keyfobhq/keyfob/internal"
	"github.com/keyfobhq/keyfob/internal/access"
	"github.com/keyfobhq/keyfob/internal/ginutil"
	"github.com/keyfobhq/keyfob/internal/logging"
	"github.com/keyfobhq/keyfob/internal/server/data"
	"github.com/keyfobhq/keyfob/internal/server/models"
	"github.com/keyfobhq/keyfob/metrics"
	"github.com/keyfobhq/keyfob/uid"
)

type Options struct {
	Sessions   SessionsOptions
	AccessKeys AccessKeysOptions
	Sweep      SweepOptions

	Addr ListenerOptions
	DB   DBOptions
}

// SessionsOptions configure session issuance. Both fields are required.
type SessionsOptions struct {
	// MaxActive caps the number of concurrently active sessions per owner.
	MaxActive int
	// TTL is how long a new session lasts before it expires.
	TTL time.Duration
}

type AccessKeysOptions struct {
	// MaxActive caps the number of active keys per owner. Zero means
	// uncapped.
	MaxActive int
	// DefaultTTL is applied when a key is issued without an expiry. Zero
	// means such keys never expire.
	DefaultTTL time.Duration
}

// SweepOptions configure the background job that deletes terminated
// credential rows. Both fields are required.
type SweepOptions struct {
	// Interval is how often the sweeper runs.
	Interval time.Duration
	// Retention is how long terminated rows are kept before deletion.
	Retention time.Duration
}

type ListenerOptions struct {
	// Metrics is the address to serve prometheus metrics on. Empty
	// disables the metrics listener.
	Metrics string
}

type DBOptions struct {
	// File is the path of a sqlite database file.
	File string
	// ConnectionString is a postgres DSN. When set it takes precedence
	// over File.
	ConnectionString string
}

func (o Options) validate() error {
	switch {
	case o.Sessions.MaxActive < 1:
		return errors.New("sessions.maxActive must be at least 1")
	case o.Sessions.TTL <= 0:
		return errors.New("sessions.ttl is required")
	case o.AccessKeys.MaxActive < 0:
		return errors.New("accessKeys.maxActive must not be negative")
	case o.AccessKeys.DefaultTTL < 0:
		return errors.New("accessKeys.defaultTTL must not be negative")
	case o.Sweep.Interval <= 0:
		return errors.New("sweep.interval is required")
	case o.Sweep.Retention <= 0:
		return errors.New("sweep.retention is required")
	case o.DB.File == "" && o.DB.ConnectionString == "":
		return errors.New("one of db.file or db.connectionString is required")
	}
	return nil
}

type Server struct {
	options         Options
	db              *data.DB
	routines        []routine
	metricsRegistry *prometheus.Registry

	Addrs Addrs
}

type Addrs struct {
	Metrics net.Addr
}

type routine struct {
	run  func() error
	stop func()
}

// New creates a Server, and initializes it. The returned Server is ready to
// run.
func New(options Options) (*Server, error) {
	if err := options.validate(); err != nil {
		return nil, err
	}

	server := &Server{options: options}

	driver, err := databaseDriver(options.DB)
	if err != nil {
		return nil, fmt.Errorf("db driver: %w", err)
	}
	db, err := data.NewDB(driver)
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}
	server.db = db
	server.metricsRegistry = setupMetrics(db)

	if err := server.listen(); err != nil {
		return nil, fmt.Errorf("listening: %w", err)
	}
	return server, nil
}

func databaseDriver(options DBOptions) (gorm.Dialector, error) {
	if options.ConnectionString != "" {
		return data.NewPostgresDriver(options.ConnectionString)
	}
	return data.NewSQLiteDriver(options.File)
}

// DB returns the database connection pool used by the server. It is
// primarily used by tests to create fixture data.
func (s *Server) DB() *data.DB {
	return s.db
}

func (s *Server) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	s.SetupBackgroundJobs(ctx)
	for i := range s.routines {
		group.Go(s.routines[i].run)
	}

	logging.Infof("starting keyfob server (%s) - metrics:%s",
		internal.FullVersion(), s.Addrs.Metrics)

	<-ctx.Done()
	for i := range s.routines {
		s.routines[i].stop()
	}

	err := group.Wait()

	if err := s.db.Close(); err != nil {
		logging.Warnf("failed to close database connection: %v", err)
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Server) listen() error {
	if s.options.Addr.Metrics == "" {
		return nil
	}

	ginutil.SetMode()
	metricsServer := &http.Server{
		ReadHeaderTimeout: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		Addr:              s.options.Addr.Metrics,
		Handler:           metrics.NewHandler(s.metricsRegistry),
		ErrorLog:          log.New(logging.NewFilteredHTTPLogger(), "", 0),
	}

	var err error
	s.Addrs.Metrics, err = s.setupServer(metricsServer)
	return err
}

func (s *Server) setupServer(server *http.Server) (net.Addr, error) {
	l, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return nil, err
	}
	logging.Infof("listening on %s", l.Addr().String())

	s.routines = append(s.routines, routine{
		run: func() error {
			err := server.Serve(l)
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
		stop: func() {
			_ = server.Close()
		},
	})
	return l.Addr(), nil
}

func (s *Server) sessionOptions() access.SessionOptions {
	return access.SessionOptions{
		MaxActive: s.options.Sessions.MaxActive,
		TTL:       s.options.Sessions.TTL,
	}
}

func (s *Server) accessKeyOptions() access.AccessKeyOptions {
	return access.AccessKeyOptions{
		MaxActive:  s.options.AccessKeys.MaxActive,
		DefaultTTL: s.options.AccessKeys.DefaultTTL,
	}
}

func (s *Server) IssueSession(ctx context.Context, ownerID uid.ID, device, clientAddr string) (*models.Session, string, error) {
	return access.IssueSession(ctx, s.db, s.sessionOptions(), ownerID, device, clientAddr)
}

func (s *Server) RotateSession(ctx context.Context, sessionID uid.ID, presented string) (*models.Session, string, error) {
	return access.RotateSession(ctx, s.db, s.sessionOptions(), sessionID, presented)
}

func (s *Server) RevokeSession(ctx context.Context, sessionID uid.ID) error {
	return access.RevokeSession(ctx, s.db, sessionID)
}

func (s *Server) ListActiveSessions(ctx context.Context, ownerID uid.ID) ([]access.SessionSummary, error) {
	return access.ListActiveSessions(ctx, s.db, ownerID)
}

func (s *Server) IssueAccessKey(ctx context.Context, ownerID uid.ID, name string, scopes []string, expiresAt *time.Time) (*models.AccessKey, string, error) {
	return access.IssueAccessKey(ctx, s.db, s.accessKeyOptions(), ownerID, name, scopes, expiresAt)
}

func (s *Server) RotateAccessKey(ctx context.Context, ownerID, keyID uid.ID) (*models.AccessKey, string, error) {
	return access.RotateAccessKey(ctx, s.db, ownerID, keyID)
}

func (s *Server) RevokeAccessKey(ctx context.Context, ownerID, keyID uid.ID) error {
	return access.RevokeAccessKey(ctx, s.db, ownerID, keyID)
}

func (s *Server) ListAccessKeys(ctx context.Context, ownerID uid.ID) ([]access.AccessKeySummary, error) {
	return access.ListAccessKeys(ctx, s.db, ownerID)
}

func (s *Server) Verify(ctx context.Context, body string) (*access.Verified, error) {
	return access.Verify(ctx, s.db, body)
}

func (s *Server) RevokeAllForOwner(ctx context.Context, ownerID uid.ID) error {
	return access.RevokeAllForOwner(ctx, s.db, ownerID)
}
