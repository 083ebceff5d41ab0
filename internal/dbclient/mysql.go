package dbclient

import (
	"net"
	"strconv"

	"github.com/go-sql-driver/mysql"
)

// buildMySQLDSN constructs a MySQL DSN through the driver's own Config so
// credentials are escaped. parseTime is always on so date columns scan into
// time.Time; Extra entries become connection params.
func buildMySQLDSN(cfg ConnConfig, password string) string {
	port := cfg.Port
	if port == 0 {
		port = 3306
	}
	mc := mysql.NewConfig()
	mc.User = cfg.Username
	mc.Passwd = password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	mc.DBName = cfg.Database
	mc.ParseTime = true
	mc.Params = map[string]string{"charset": "utf8mb4"}
	for k, v := range cfg.Extra {
		mc.Params[k] = v
	}
	switch cfg.SSLMode {
	case "require":
		mc.TLSConfig = "true"
	case "skip-verify":
		mc.TLSConfig = "skip-verify"
	}
	return mc.FormatDSN()
}
