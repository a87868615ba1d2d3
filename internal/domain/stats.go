package domain

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"
)

type SoftwareLicenseCount struct {
	SoftwareID   string `json:"softwareId"`
	SoftwareName string `json:"softwareName"`
	Count        int    `json:"count"`
}

// LicenseStats — сводка по лицензиям организации для админки.
type LicenseStats struct {
	TotalLicenses      int                    `json:"totalLicenses"`
	ActiveLicenses     int                    `json:"activeLicenses"`
	MonthlyTotalCost   decimal.Decimal        `json:"monthlyTotalCost"`
	LicensesBySoftware []SoftwareLicenseCount `json:"licensesBySoftware"`
	RecentActivity     []*License             `json:"recentActivity"`
}

// RecentActivityLimit — сколько последних лицензий показываем в сводке.
const RecentActivityLimit = 10

// CountBySoftware группирует ACTIVE лицензии по ПО: больше лицензий выше,
// при равенстве по имени.
func CountBySoftware(licenses []*License) []SoftwareLicenseCount {
	idx := make(map[string]int)
	out := make([]SoftwareLicenseCount, 0)
	for _, l := range licenses {
		if l == nil || l.Status != LicenseActive {
			continue
		}
		i, ok := idx[l.SoftwareID]
		if !ok {
			c := SoftwareLicenseCount{SoftwareID: l.SoftwareID}
			if l.Software != nil {
				c.SoftwareName = l.Software.Name
			}
			i = len(out)
			idx[l.SoftwareID] = i
			out = append(out, c)
		}
		out[i].Count++
	}
	slices.SortFunc(out, func(a, b SoftwareLicenseCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.SoftwareName, b.SoftwareName)
	})
	return out
}
