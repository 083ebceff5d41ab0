package dbclient

import (
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
)

func TestBuildPostgresDSN(t *testing.T) {
	got := buildPostgresDSN(ConnConfig{Host: "db", Username: "etl", Database: "fluve", Extra: map[string]string{"search_path": "lab", "connect_timeout": "5"}}, "pw")
	want := "host=db port=5432 user=etl password=pw dbname=fluve sslmode=disable connect_timeout=5 search_path=lab"
	if got != want {
		t.Errorf("dsn = %q, want %q", got, want)
	}
}

func TestBuildMySQLDSN(t *testing.T) {
	dsn := buildMySQLDSN(ConnConfig{
		Host:     "db",
		Username: "etl",
		Database: "fluve",
		SSLMode:  "require",
		Extra:    map[string]string{"timeout": "5s"},
	}, "p@ss")

	mc, err := mysql.ParseDSN(dsn)
	if err != nil {
		t.Fatalf("parse %q: %v", dsn, err)
	}
	if mc.User != "etl" || mc.Passwd != "p@ss" || mc.Addr != "db:3306" || mc.DBName != "fluve" {
		t.Errorf("unexpected dsn fields: %+v", mc)
	}
	if !mc.ParseTime {
		t.Error("parseTime should be on")
	}
	if mc.TLSConfig != "true" {
		t.Errorf("tls = %q, want true", mc.TLSConfig)
	}
	if mc.Timeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", mc.Timeout)
	}
}

func TestMongoURI(t *testing.T) {
	tests := []struct {
		name string
		cfg  ConnConfig
		want string
	}{
		{"host and port", ConnConfig{Host: "localhost"}, "mongodb://localhost:27017"},
		{"credentials", ConnConfig{Host: "m", Port: 27018, Username: "u"}, "mongodb://u:pw@m:27018"},
		{"extra params", ConnConfig{Host: "m", Extra: map[string]string{"replicaSet": "rs0", "authSource": "admin"}}, "mongodb://m:27017/?authSource=admin&replicaSet=rs0"},
		{"atlas placeholder", ConnConfig{Host: "mongodb+srv://u:<password>@cluster.example.net"}, "mongodb+srv://u:pw@cluster.example.net"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mongoURI(tt.cfg, "pw"); got != tt.want {
				t.Errorf("uri = %q, want %q", got, tt.want)
			}
		})
	}
}
