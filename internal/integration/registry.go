package integration

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/reclaimarr/reclaimarr/internal/config"
	"github.com/reclaimarr/reclaimarr/internal/crypto"
	"github.com/reclaimarr/reclaimarr/internal/logger"
)

// Registry holds the clients for the configured service instances. Instances
// live in the service_instances table; Reload rebuilds the clients after a
// configuration change. An unconfigured service is reported as absent, not
// as an error, so callers can treat it as a skip state.
type Registry struct {
	db *sql.DB

	mu      sync.RWMutex
	catalog CatalogClient
	movies  MovieManager
	series  SeriesManager
}

// NewRegistry creates a registry and loads the configured instances.
func NewRegistry(db *sql.DB) (*Registry, error) {
	r := &Registry{db: db}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload rebuilds all clients from the service_instances table. The first
// enabled instance of each type wins.
func (r *Registry) Reload() error {
	infos, err := r.loadInstances()
	if err != nil {
		return err
	}

	cfg := config.Get()

	var catalog CatalogClient
	var movies MovieManager
	var series SeriesManager

	for _, info := range infos {
		switch info.Type {
		case ServiceTypeCatalog:
			if catalog == nil {
				catalog = NewJellyfinClient(info, cfg.RequestTimeout, cfg.ArrRateLimitRPS, cfg.ArrRateLimitBurst)
			}
		case ServiceTypeRadarr:
			if movies == nil {
				movies = NewRadarrClient(info, cfg.RequestTimeout, cfg.ArrRateLimitRPS, cfg.ArrRateLimitBurst)
			}
		case ServiceTypeSonarr:
			if series == nil {
				series = NewSonarrClient(info, cfg.RequestTimeout, cfg.ArrRateLimitRPS, cfg.ArrRateLimitBurst)
			}
		default:
			logger.Warnf("Ignoring service instance %q with unknown type %q", info.Name, info.Type)
		}
	}

	r.mu.Lock()
	r.catalog = catalog
	r.movies = movies
	r.series = series
	r.mu.Unlock()

	logger.Debugf("Service registry reloaded (catalog=%t movies=%t series=%t)",
		catalog != nil, movies != nil, series != nil)
	return nil
}

// loadInstances reads enabled instances and decrypts their API keys.
func (r *Registry) loadInstances() ([]ServiceInfo, error) {
	rows, err := r.db.Query("SELECT id, name, type, url, api_key, enabled FROM service_instances WHERE enabled = 1 ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query service instances: %w", err)
	}
	defer rows.Close()

	var infos []ServiceInfo
	for rows.Next() {
		var info ServiceInfo
		var encryptedKey string
		if err := rows.Scan(&info.ID, &info.Name, &info.Type, &info.URL, &encryptedKey, &info.Enabled); err != nil {
			continue
		}
		decryptedKey, err := crypto.Decrypt(encryptedKey)
		if err != nil {
			logger.Errorf("Failed to decrypt API key for service %d (%s): %v", info.ID, info.Name, err)
			continue
		}
		info.APIKey = decryptedKey
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating service instances: %w", err)
	}
	return infos, nil
}

// Catalog returns the configured catalog client, if any.
func (r *Registry) Catalog() (CatalogClient, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.catalog, r.catalog != nil
}

// Movies returns the configured movie manager, if any.
func (r *Registry) Movies() (MovieManager, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.movies, r.movies != nil
}

// Series returns the configured series manager, if any.
func (r *Registry) Series() (SeriesManager, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.series, r.series != nil
}

// TestConnection builds a transient client for the given (possibly unsaved)
// instance configuration and pings it.
func TestConnection(ctx context.Context, info ServiceInfo) error {
	cfg := config.Get()
	switch info.Type {
	case ServiceTypeCatalog:
		return NewJellyfinClient(info, cfg.RequestTimeout, cfg.ArrRateLimitRPS, cfg.ArrRateLimitBurst).Ping(ctx)
	case ServiceTypeRadarr:
		return NewRadarrClient(info, cfg.RequestTimeout, cfg.ArrRateLimitRPS, cfg.ArrRateLimitBurst).Ping(ctx)
	case ServiceTypeSonarr:
		return NewSonarrClient(info, cfg.RequestTimeout, cfg.ArrRateLimitRPS, cfg.ArrRateLimitBurst).Ping(ctx)
	default:
		return fmt.Errorf("unknown service type: %s", info.Type)
	}
}
