package ingest

import "strings"

// Normalized licence codes.
const (
	LicenseCC0     = "cc0"
	LicenseCCBy    = "cc-by"
	LicenseCCBySA  = "cc-by-sa"
	LicenseCCByNC  = "cc-by-nc"
	LicenseUnknown = "unknown"
)

// NormalizeLicense maps Creative Commons URLs and short names to a code.
func NormalizeLicense(license string) string {
	l := strings.ToLower(strings.TrimSpace(license))
	switch {
	case l == "":
		return LicenseUnknown
	case l == "cc0", strings.Contains(l, "publicdomain/zero"), strings.Contains(l, "creative commons 0"):
		return LicenseCC0
	case strings.Contains(l, "by-nc"), strings.Contains(l, "noncommercial"):
		return LicenseCCByNC
	case strings.Contains(l, "by-sa"), strings.Contains(l, "sharealike"):
		return LicenseCCBySA
	case strings.Contains(l, "/by/"), strings.HasPrefix(l, "cc-by"), strings.HasPrefix(l, "cc by"), l == "attribution":
		return LicenseCCBy
	default:
		return l
	}
}

// RequiresAttribution is false only for CC0.
func RequiresAttribution(license string) bool {
	return NormalizeLicense(license) != LicenseCC0
}
