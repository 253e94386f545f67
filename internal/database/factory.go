package database

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/Lumos-Labs-HQ/datagen/internal/database/common"
	"github.com/Lumos-Labs-HQ/datagen/internal/database/mysql"
	"github.com/Lumos-Labs-HQ/datagen/internal/database/postgres"
	"github.com/Lumos-Labs-HQ/datagen/internal/database/sqlite"
	"github.com/Lumos-Labs-HQ/datagen/internal/types"
)

type UnsupportedError struct {
	Provider string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("unsupported data source type: %s", e.Provider)
}

func (e *UnsupportedError) Code() string {
	return "UNSUPPORTED_PROVIDER"
}

// NewAdapter returns an unconnected adapter. driver only matters for
// postgresql, where "pq" selects lib/pq instead of pgx.
func NewAdapter(provider, driver string) (Adapter, error) {
	switch strings.ToLower(provider) {
	case "postgresql", "postgres":
		return postgres.New(postgres.WithDriver(driver)), nil
	case "mysql":
		return mysql.New(), nil
	case "sqlite", "sqlite3":
		return sqlite.New(), nil
	default:
		return nil, &UnsupportedError{Provider: provider}
	}
}

// Open connects an adapter for the data source.
func Open(ctx context.Context, src *types.DataSource) (Adapter, error) {
	adapter, err := NewAdapter(src.Provider(), src.Driver)
	if err != nil {
		return nil, err
	}
	if err := adapter.Connect(ctx, ConnectionURL(src)); err != nil {
		return nil, err
	}
	return adapter, nil
}

// ConnectionURL injects the data source credentials into its URL when the
// URL does not already carry them.
func ConnectionURL(src *types.DataSource) string {
	raw := src.URL
	if src.Username == "" || src.Provider() == "sqlite" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" || u.User != nil {
		return raw
	}
	if secret := src.Secret(); secret != "" {
		u.User = url.UserPassword(src.Username, secret)
	} else {
		u.User = url.User(src.Username)
	}
	return u.String()
}

// Classify inspects a driver error from any supported store.
func Classify(err error) *StoreError {
	if err == nil {
		return nil
	}
	for _, classify := range []func(error) (*common.StoreError, bool){
		mysql.Classify,
		postgres.Classify,
		sqlite.Classify,
	} {
		if se, ok := classify(err); ok {
			return se
		}
	}
	return &StoreError{Kind: Other, Err: err}
}
