// internal/model/proxy_config.go
package model

import "fmt"

// ProxyConfig is a stored automation-endpoint credential set. The engine
// only ever reads these; configuration storage owns them.
type ProxyConfig struct {
	ID         int    `db:"id" json:"id"`
	OwnerID    int    `db:"owner_id" json:"owner_id"`
	Enabled    bool   `db:"enabled" json:"enabled"`
	Priority   int    `db:"priority" json:"priority"`
	CustomerID string `db:"customer_id" json:"customer_id"`
	ZoneName   string `db:"zone_name" json:"zone_name"`
	Username   string `db:"username" json:"username"`
	Password   string `db:"password" json:"-"`
	Host       string `db:"host" json:"host"`
	Port       int    `db:"port" json:"port"`
}

// Valid reports whether the config carries enough to open a connection.
func (p *ProxyConfig) Valid() bool {
	return p.Host != "" && p.Port > 0 && p.Password != "" &&
		(p.Username != "" || (p.CustomerID != "" && p.ZoneName != ""))
}

// ProxyHandle is a resolved, health-checked automation endpoint handed to
// a session runner.
type ProxyHandle struct {
	Endpoint string
	Username string
	Password string
}

// Handle derives the connection handle for a config. Provider accounts
// keyed by customer id and zone use the brd-customer-<id>-zone-<zone>
// username convention.
func (p *ProxyConfig) Handle() ProxyHandle {
	username := p.Username
	if username == "" {
		username = fmt.Sprintf("brd-customer-%s-zone-%s", p.CustomerID, p.ZoneName)
	}
	return ProxyHandle{
		Endpoint: fmt.Sprintf("%s:%d", p.Host, p.Port),
		Username: username,
		Password: p.Password,
	}
}
