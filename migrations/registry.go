package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"

	blueledger "github.com/goliatone/go-blueledger"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	DefaultSourceLabel = "go-blueledger"

	embeddedRoot = "data/sql/migrations"
)

// LedgerTables lists the tables created by the ledger schema, in creation
// order.
var LedgerTables = []string{
	"blueledger_projects",
	"blueledger_attestations",
	"blueledger_oracle_summaries",
	"blueledger_credit_lots",
	"blueledger_holder_balances",
	"blueledger_holder_positions",
	"blueledger_retirement_certificates",
	"blueledger_transactions",
}

type FilesystemSpec struct {
	Dialect    string
	Path       string
	FS         fs.FS
	Migrations []Migration
}

// Migration is one numbered up/down pair.
type Migration struct {
	Version  int
	Name     string
	UpFile   string
	DownFile string
}

type Registration struct {
	SourceLabel       string
	ValidationTargets []string
	Filesystems       []FilesystemSpec
}

// RegisterFunc receives one dialect filesystem per validation target.
type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*Registration)

func WithDialectSourceLabel(label string) Option {
	return func(r *Registration) {
		if label = strings.TrimSpace(label); label != "" {
			r.SourceLabel = label
		}
	}
}

func WithValidationTargets(targets ...string) Option {
	return func(r *Registration) {
		if next := normalizeDialects(targets); len(next) > 0 {
			r.ValidationTargets = next
		}
	}
}

func WithFilesystems(filesystems ...FilesystemSpec) Option {
	return func(r *Registration) {
		next := make([]FilesystemSpec, 0, len(filesystems))
		for _, spec := range filesystems {
			spec.Dialect = strings.ToLower(strings.TrimSpace(spec.Dialect))
			if spec.Dialect == "" || spec.FS == nil {
				continue
			}
			next = append(next, spec)
		}
		if len(next) > 0 {
			r.Filesystems = next
		}
	}
}

// Plan reads the numbered migrations in fsys. Every version needs both an
// up and a down file.
func Plan(fsys fs.FS) ([]Migration, error) {
	if fsys == nil {
		return nil, fmt.Errorf("migrations: filesystem is required")
	}
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("migrations: read directory: %w", err)
	}

	byVersion := map[int]*Migration{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version, name, direction, ok := parseMigrationFile(entry.Name())
		if !ok {
			continue
		}
		current := byVersion[version]
		if current == nil {
			current = &Migration{Version: version, Name: name}
			byVersion[version] = current
		} else if current.Name != name {
			return nil, fmt.Errorf("migrations: version %05d used by %q and %q", version, current.Name, name)
		}
		if direction == "up" {
			current.UpFile = entry.Name()
		} else {
			current.DownFile = entry.Name()
		}
	}
	if len(byVersion) == 0 {
		return nil, fmt.Errorf("migrations: no *.up.sql files found")
	}

	plan := make([]Migration, 0, len(byVersion))
	for _, migration := range byVersion {
		if migration.UpFile == "" || migration.DownFile == "" {
			return nil, fmt.Errorf("migrations: version %05d (%s) needs both up and down files", migration.Version, migration.Name)
		}
		plan = append(plan, *migration)
	}
	slices.SortFunc(plan, func(a, b Migration) int { return a.Version - b.Version })
	return plan, nil
}

// Filesystems resolves the postgres and sqlite migration trees and checks that
// both dialects carry the same versions. The first source overrides the
// embedded tree when present.
func Filesystems(sources ...fs.FS) ([]FilesystemSpec, error) {
	root := blueledger.GetMigrationsFS()
	if len(sources) > 0 && sources[0] != nil {
		root = sources[0]
	}

	postgresFS, basePath, err := migrationsRoot(root)
	if err != nil {
		return nil, err
	}
	sqliteFS, err := fs.Sub(postgresFS, DialectSQLite)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite filesystem: %w", err)
	}

	specs := []FilesystemSpec{
		{Dialect: DialectPostgres, Path: basePath, FS: postgresFS},
		{Dialect: DialectSQLite, Path: path.Join(basePath, DialectSQLite), FS: sqliteFS},
	}
	for i := range specs {
		plan, planErr := Plan(specs[i].FS)
		if planErr != nil {
			return nil, fmt.Errorf("migrations: %s %q: %w", specs[i].Dialect, specs[i].Path, planErr)
		}
		specs[i].Migrations = plan
	}
	if err := checkParity(specs[0], specs[1]); err != nil {
		return nil, err
	}
	return specs, nil
}

// Register hands every validation target's filesystem to registerFn.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	reg := Registration{
		SourceLabel:       DefaultSourceLabel,
		ValidationTargets: []string{DialectPostgres, DialectSQLite},
	}
	if registerFn == nil {
		return reg, fmt.Errorf("migrations: register function is required")
	}

	filesystems, err := Filesystems()
	if err != nil {
		return reg, err
	}
	reg.Filesystems = filesystems
	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}

	switch {
	case len(reg.ValidationTargets) == 0:
		return reg, fmt.Errorf("migrations: validation targets are required")
	case strings.TrimSpace(reg.SourceLabel) == "":
		return reg, fmt.Errorf("migrations: source label is required")
	case len(reg.Filesystems) == 0:
		return reg, fmt.Errorf("migrations: filesystems are required")
	}

	for _, spec := range reg.Filesystems {
		if !slices.Contains(reg.ValidationTargets, spec.Dialect) {
			continue
		}
		if err := registerFn(ctx, spec.Dialect, reg.SourceLabel, spec.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s (%s): %w", spec.Dialect, spec.Path, err)
		}
	}
	return reg, nil
}

func checkParity(postgres FilesystemSpec, sqlite FilesystemSpec) error {
	if len(postgres.Migrations) != len(sqlite.Migrations) {
		return fmt.Errorf("migrations: postgres has %d versions, sqlite has %d", len(postgres.Migrations), len(sqlite.Migrations))
	}
	for i := range postgres.Migrations {
		if postgres.Migrations[i].Version != sqlite.Migrations[i].Version {
			return fmt.Errorf("migrations: version %05d has no sqlite counterpart", postgres.Migrations[i].Version)
		}
	}
	return nil
}

// parseMigrationFile splits "00001_blueledger_core.up.sql".
func parseMigrationFile(filename string) (int, string, string, bool) {
	base, ok := strings.CutSuffix(filename, ".sql")
	if !ok {
		return 0, "", "", false
	}
	direction := ""
	switch {
	case strings.HasSuffix(base, ".up"):
		direction, base = "up", strings.TrimSuffix(base, ".up")
	case strings.HasSuffix(base, ".down"):
		direction, base = "down", strings.TrimSuffix(base, ".down")
	default:
		return 0, "", "", false
	}
	prefix, name, ok := strings.Cut(base, "_")
	if !ok || name == "" {
		return 0, "", "", false
	}
	version, err := strconv.Atoi(prefix)
	if err != nil || version <= 0 {
		return 0, "", "", false
	}
	return version, name, direction, true
}

func migrationsRoot(root fs.FS) (fs.FS, string, error) {
	if _, err := fs.Stat(root, embeddedRoot); err == nil {
		sub, subErr := fs.Sub(root, embeddedRoot)
		if subErr != nil {
			return nil, "", fmt.Errorf("migrations: open %s: %w", embeddedRoot, subErr)
		}
		return sub, embeddedRoot, nil
	}
	if matches, _ := fs.Glob(root, "*.sql"); len(matches) > 0 {
		return root, ".", nil
	}
	return nil, "", fmt.Errorf("migrations: %s not found", embeddedRoot)
}

func normalizeDialects(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.ToLower(strings.TrimSpace(value))
		if value == "" || slices.Contains(out, value) {
			continue
		}
		out = append(out, value)
	}
	return out
}
