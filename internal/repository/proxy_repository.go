package repository

import (
	"database/sql"

	"github.com/unclebandit/trafficpilot-backend/internal/model"
)

// ProxyRepositoryInterface is read-only: proxy configs are owned by
// configuration storage, the engine never writes them.
type ProxyRepositoryInterface interface {
	ListEnabledByOwner(ownerID int) ([]*model.ProxyConfig, error)
}

type ProxyRepository struct {
	DB *sql.DB
}

// ListEnabledByOwner returns the owner's enabled configs in priority
// order. Disabled rows never come back.
func (r *ProxyRepository) ListEnabledByOwner(ownerID int) ([]*model.ProxyConfig, error) {
	query := `
        SELECT id, owner_id, enabled, priority, customer_id, zone_name,
               username, password, host, port
        FROM proxy_configs
        WHERE owner_id=$1 AND enabled=TRUE
        ORDER BY priority, id
    `
	rows, err := r.DB.Query(query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	configs := []*model.ProxyConfig{}
	for rows.Next() {
		var p model.ProxyConfig
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.Enabled, &p.Priority,
			&p.CustomerID, &p.ZoneName, &p.Username, &p.Password, &p.Host, &p.Port); err != nil {
			return nil, err
		}
		configs = append(configs, &p)
	}
	return configs, rows.Err()
}

var _ ProxyRepositoryInterface = (*ProxyRepository)(nil)
