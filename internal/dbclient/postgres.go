package dbclient

import (
	"fmt"
	"sort"
	"strings"

	_ "github.com/lib/pq"
)

// buildPostgresDSN constructs a key=value Postgres connection string.
// Extra entries (search_path, connect_timeout, ...) are appended in key order.
func buildPostgresDSN(cfg ConnConfig, password string) string {
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, port, cfg.Username, password, cfg.Database, sslMode,
	)
	keys := make([]string, 0, len(cfg.Extra))
	for k := range cfg.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(dsn)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, cfg.Extra[k])
	}
	return b.String()
}
