package marketreport

// UnknownSite is the name of assets without a configured site name.
const UnknownSite = "Unknown"

// SiteFilter restricts rows to allow-listed asset ids.
type SiteFilter struct {
	sites map[string]string
}

// NewSiteFilter builds a filter from asset id to site name.
func NewSiteFilter(sites map[string]string) SiteFilter {
	copied := make(map[string]string, len(sites))
	for id, name := range sites {
		copied[id] = name
	}
	return SiteFilter{sites: copied}
}

// Allowed reports whether the asset is allow-listed.
func (f SiteFilter) Allowed(assetID string) bool {
	_, ok := f.sites[assetID]
	return ok
}

// Name resolves a site name, falling back to UnknownSite.
func (f SiteFilter) Name(assetID string) string {
	if name := f.sites[assetID]; name != "" {
		return name
	}
	return UnknownSite
}

// Apply drops rows for assets outside the allow-list.
func (f SiteFilter) Apply(rows []HourlyRow) []HourlyRow {
	var result []HourlyRow
	for _, row := range rows {
		if f.Allowed(row.AssetID) {
			result = append(result, row)
		}
	}
	return result
}
