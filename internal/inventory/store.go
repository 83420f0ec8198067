package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	internalerrors "github.com/rcourtman/pulse-snmp-profiles/internal/errors"
	"github.com/rcourtman/pulse-snmp-profiles/internal/filter"
)

// MemoryPath opens a private in-memory inventory.
const MemoryPath = ":memory:"

var lookupTimeout = 2 * time.Second

// Node is a monitored device and the facts filters and metadata placeholders
// are evaluated against.
type Node struct {
	ID            int64                        `json:"id"`
	Label         string                       `json:"label"`
	ForeignSource string                       `json:"foreignSource,omitempty"`
	Location      string                       `json:"location,omitempty"`
	SysObjectID   string                       `json:"sysObjectId,omitempty"`
	Hostname      string                       `json:"hostname,omitempty"`
	Interfaces    []netip.Addr                 `json:"interfaces"`
	Categories    []string                     `json:"categories"`
	Metadata      map[string]map[string]string `json:"metadata,omitempty"`
}

// Store is a SQLite-backed node inventory.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the inventory database at path.
func Open(path string) (*Store, error) {
	dsn := MemoryPath
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create inventory dir: %w", err)
		}
		dsn = path + "?" + url.Values{
			"_pragma": []string{
				"busy_timeout(30000)",
				"journal_mode(WAL)",
				"synchronous(NORMAL)",
				"foreign_keys(1)",
			},
		}.Encode()
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open inventory db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS nodes (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		label          TEXT NOT NULL UNIQUE,
		foreign_source TEXT NOT NULL DEFAULT '',
		location       TEXT NOT NULL DEFAULT '',
		sys_object_id  TEXT NOT NULL DEFAULT '',
		hostname       TEXT NOT NULL DEFAULT '',
		updated_at     INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS ip_interfaces (
		ip      TEXT PRIMARY KEY,
		node_id INTEGER NOT NULL REFERENCES nodes(id) ON DELETE CASCADE
	);
	CREATE TABLE IF NOT EXISTS categories (
		node_id INTEGER NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
		name    TEXT NOT NULL,
		PRIMARY KEY (node_id, name)
	);
	CREATE TABLE IF NOT EXISTS metadata (
		node_id INTEGER NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
		context TEXT NOT NULL,
		key     TEXT NOT NULL,
		value   TEXT NOT NULL,
		PRIMARY KEY (node_id, context, key)
	);
	CREATE INDEX IF NOT EXISTS idx_ip_interfaces_node ON ip_interfaces(node_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("init inventory schema: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// UpsertNode inserts or replaces the node identified by its label, including
// its interfaces, categories and metadata. Interfaces owned by another node
// are moved to this one.
func (s *Store) UpsertNode(ctx context.Context, n Node) (int64, error) {
	label := strings.TrimSpace(n.Label)
	if label == "" {
		return 0, internalerrors.NewResolveError(internalerrors.ErrorTypeValidation, "upsert_node", fmt.Errorf("label is required"))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin upsert node: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO nodes (label, foreign_source, location, sys_object_id, hostname, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(label) DO UPDATE SET
			foreign_source = excluded.foreign_source,
			location       = excluded.location,
			sys_object_id  = excluded.sys_object_id,
			hostname       = excluded.hostname,
			updated_at     = excluded.updated_at
		RETURNING id`,
		label, n.ForeignSource, n.Location, n.SysObjectID, n.Hostname, time.Now().UTC().Unix(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert node %s: %w", label, err)
	}

	for _, stmt := range []string{
		`DELETE FROM ip_interfaces WHERE node_id = ?`,
		`DELETE FROM categories WHERE node_id = ?`,
		`DELETE FROM metadata WHERE node_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return 0, fmt.Errorf("clear node %s children: %w", label, err)
		}
	}

	for _, addr := range n.Interfaces {
		if !addr.IsValid() {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ip_interfaces (ip, node_id) VALUES (?, ?)
			ON CONFLICT(ip) DO UPDATE SET node_id = excluded.node_id`,
			addr.Unmap().String(), id); err != nil {
			return 0, fmt.Errorf("store interface %s: %w", addr, err)
		}
	}
	for _, category := range n.Categories {
		category = strings.TrimSpace(category)
		if category == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO categories (node_id, name) VALUES (?, ?)`, id, category); err != nil {
			return 0, fmt.Errorf("store category %s: %w", category, err)
		}
	}
	for scope, values := range n.Metadata {
		for key, value := range values {
			if _, err := tx.ExecContext(ctx, `INSERT INTO metadata (node_id, context, key, value) VALUES (?, ?, ?, ?)`, id, scope, key, value); err != nil {
				return 0, fmt.Errorf("store metadata %s:%s: %w", scope, key, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit upsert node %s: %w", label, err)
	}
	return id, nil
}

// NodeByIP returns the node owning addr.
func (s *Store) NodeByIP(ctx context.Context, addr netip.Addr) (*Node, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT n.id, n.label, n.foreign_source, n.location, n.sys_object_id, n.hostname
		FROM nodes n JOIN ip_interfaces i ON i.node_id = n.id
		WHERE i.ip = ?`, addr.Unmap().String())

	var n Node
	if err := row.Scan(&n.ID, &n.Label, &n.ForeignSource, &n.Location, &n.SysObjectID, &n.Hostname); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, internalerrors.NewResolveError(internalerrors.ErrorTypeNotFound, "node_by_ip", fmt.Errorf("no node owns %s", addr)).WithAddress(addr.String())
		}
		return nil, fmt.Errorf("lookup node by ip %s: %w", addr, err)
	}
	if err := s.loadChildren(ctx, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// ListNodes returns all nodes ordered by label.
func (s *Store) ListNodes(ctx context.Context) ([]Node, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, label, foreign_source, location, sys_object_id, hostname
		FROM nodes ORDER BY label`)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}

	var nodes []Node
	for rows.Next() {
		var n Node
		if err := rows.Scan(&n.ID, &n.Label, &n.ForeignSource, &n.Location, &n.SysObjectID, &n.Hostname); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan node: %w", err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate nodes: %w", err)
	}
	rows.Close()

	// Children are loaded after the cursor is closed; the pool holds one connection.
	for i := range nodes {
		if err := s.loadChildren(ctx, &nodes[i]); err != nil {
			return nil, err
		}
	}
	return nodes, nil
}

func (s *Store) loadChildren(ctx context.Context, n *Node) error {
	n.Interfaces = []netip.Addr{}
	n.Categories = []string{}
	n.Metadata = map[string]map[string]string{}

	ips, err := s.queryStrings(ctx, `SELECT ip FROM ip_interfaces WHERE node_id = ?`, n.ID)
	if err != nil {
		return fmt.Errorf("load interfaces for %s: %w", n.Label, err)
	}
	for _, ip := range ips {
		addr, err := netip.ParseAddr(ip)
		if err != nil {
			log.Warn().Str("node", n.Label).Str("ip", ip).Msg("Skipping unparsable interface address")
			continue
		}
		n.Interfaces = append(n.Interfaces, addr)
	}
	sort.Slice(n.Interfaces, func(i, j int) bool { return n.Interfaces[i].Less(n.Interfaces[j]) })

	if n.Categories, err = s.queryStrings(ctx, `SELECT name FROM categories WHERE node_id = ? ORDER BY name`, n.ID); err != nil {
		return fmt.Errorf("load categories for %s: %w", n.Label, err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT context, key, value FROM metadata WHERE node_id = ?`, n.ID)
	if err != nil {
		return fmt.Errorf("load metadata for %s: %w", n.Label, err)
	}
	defer rows.Close()
	for rows.Next() {
		var scope, key, value string
		if err := rows.Scan(&scope, &key, &value); err != nil {
			return fmt.Errorf("scan metadata for %s: %w", n.Label, err)
		}
		if n.Metadata[scope] == nil {
			n.Metadata[scope] = map[string]string{}
		}
		n.Metadata[scope][key] = value
	}
	return rows.Err()
}

func (s *Store) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Metadata implements snmpconfig.MetadataSource: the scope is the metadata
// context stored for the node owning addr.
func (s *Store) Metadata(addr netip.Addr, scope, key string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()

	var value string
	err := s.db.QueryRowContext(ctx, `
		SELECT m.value FROM metadata m
		JOIN ip_interfaces i ON i.node_id = m.node_id
		WHERE i.ip = ? AND m.context = ? AND m.key = ?`,
		addr.Unmap().String(), scope, key).Scan(&value)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.Warn().Err(err).Str("ip", addr.String()).Str("scope", scope).Str("key", key).Msg("Metadata lookup failed")
		}
		return "", false
	}
	return value, true
}

// NodeFacts implements filter.NodeLookup. Only a missing node is reported as
// not found; any other failure is returned so the filter can exclude the
// profile instead of evaluating empty facts.
func (s *Store) NodeFacts(addr netip.Addr) (filter.Facts, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()

	node, err := s.NodeByIP(ctx, addr)
	if err != nil {
		if errors.Is(err, internalerrors.ErrNotFound) {
			return filter.Facts{}, false, nil
		}
		log.Warn().Err(err).Str("ip", addr.String()).Msg("Node lookup failed")
		return filter.Facts{}, false, err
	}
	return filter.Facts{
		NodeLabel:     node.Label,
		Location:      node.Location,
		ForeignSource: node.ForeignSource,
		SysObjectID:   node.SysObjectID,
		Hostname:      node.Hostname,
		Categories:    node.Categories,
	}, true, nil
}
