package integration

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/reclaimarr/reclaimarr/internal/domain"
)

// JellyfinClient talks to a Jellyfin-compatible catalog server.
type JellyfinClient struct {
	baseClient
}

// NewJellyfinClient creates a catalog client for the given instance.
func NewJellyfinClient(info ServiceInfo, timeout time.Duration, rps float64, burst int) *JellyfinClient {
	return &JellyfinClient{
		baseClient: newBaseClient(info.Name, info.URL, info.APIKey, "X-Emby-Token", timeout, rps, burst),
	}
}

var _ CatalogClient = (*JellyfinClient)(nil)

// jellyfinItem is one entry of the catalog Items response.
type jellyfinItem struct {
	ID          string            `json:"Id"`
	Name        string            `json:"Name"`
	Type        string            `json:"Type"` // Movie, Series, Season
	DateCreated time.Time         `json:"DateCreated"`
	SeriesID    string            `json:"SeriesId,omitempty"`
	SeriesName  string            `json:"SeriesName,omitempty"`
	ProviderIDs map[string]string `json:"ProviderIds,omitempty"`
}

type jellyfinItemsResponse struct {
	Items            []jellyfinItem `json:"Items"`
	TotalRecordCount int            `json:"TotalRecordCount"`
}

// itemTypeForKind maps a catalog entry kind to the Jellyfin item type.
func itemTypeForKind(kind domain.Kind) string {
	switch kind {
	case domain.KindMovie:
		return "Movie"
	case domain.KindSeries:
		return "Series"
	case domain.KindSeason:
		return "Season"
	default:
		return ""
	}
}

// kindForItemType maps a Jellyfin item type back to a catalog entry kind.
func kindForItemType(itemType string) (domain.Kind, bool) {
	switch itemType {
	case "Movie":
		return domain.KindMovie, true
	case "Series":
		return domain.KindSeries, true
	case "Season":
		return domain.KindSeason, true
	default:
		return "", false
	}
}

func entryFromItem(item jellyfinItem) (domain.CatalogEntry, bool) {
	kind, ok := kindForItemType(item.Type)
	if !ok {
		return domain.CatalogEntry{}, false
	}
	return domain.CatalogEntry{
		ID:               item.ID,
		Kind:             kind,
		Name:             item.Name,
		CreatedAt:        item.DateCreated,
		ParentSeriesID:   item.SeriesID,
		ParentSeriesName: item.SeriesName,
		ProviderIDs:      item.ProviderIDs,
	}, true
}

// ListEntries fetches catalog entries of the given kinds. A limit of 0
// means no limit.
func (c *JellyfinClient) ListEntries(ctx context.Context, kinds []domain.Kind, limit int) ([]domain.CatalogEntry, error) {
	var itemTypes []string
	for _, kind := range kinds {
		if t := itemTypeForKind(kind); t != "" {
			itemTypes = append(itemTypes, t)
		}
	}
	if len(itemTypes) == 0 {
		return nil, nil
	}

	query := url.Values{}
	query.Set("IncludeItemTypes", strings.Join(itemTypes, ","))
	query.Set("Recursive", "true")
	query.Set("Fields", "DateCreated,ProviderIds")
	if limit > 0 {
		query.Set("Limit", fmt.Sprintf("%d", limit))
	}

	var result jellyfinItemsResponse
	if err := c.getJSON(ctx, "/Items?"+query.Encode(), &result); err != nil {
		return nil, fmt.Errorf("catalog list entries: %w", err)
	}

	entries := make([]domain.CatalogEntry, 0, len(result.Items))
	for _, item := range result.Items {
		if entry, ok := entryFromItem(item); ok {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// GetEntriesByIDs fetches specific catalog entries by item ID. IDs the
// catalog does not know are absent from the result.
func (c *JellyfinClient) GetEntriesByIDs(ctx context.Context, ids []string) ([]domain.CatalogEntry, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := url.Values{}
	query.Set("Ids", strings.Join(ids, ","))
	query.Set("Fields", "DateCreated,ProviderIds")

	var result jellyfinItemsResponse
	if err := c.getJSON(ctx, "/Items?"+query.Encode(), &result); err != nil {
		return nil, fmt.Errorf("catalog get entries: %w", err)
	}

	entries := make([]domain.CatalogEntry, 0, len(result.Items))
	for _, item := range result.Items {
		if entry, ok := entryFromItem(item); ok {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// ImageURL returns the primary image URL for an entry.
func (c *JellyfinClient) ImageURL(entry domain.CatalogEntry) string {
	if entry.ID == "" {
		return ""
	}
	return fmt.Sprintf("%s/Items/%s/Images/Primary", c.baseURL, url.PathEscape(entry.ID))
}

// Ping checks that the catalog server is reachable and the API key works.
func (c *JellyfinClient) Ping(ctx context.Context) error {
	var info struct {
		ServerName string `json:"ServerName"`
		Version    string `json:"Version"`
	}
	if err := c.getJSON(ctx, "/System/Info", &info); err != nil {
		return fmt.Errorf("catalog ping: %w", err)
	}
	return nil
}
