package config

import (
	"os"
	"strings"
)

// PalletPatternPolicy controls what happens when pallet TI x HI disagrees with cases per pallet.
//
// Set via env:
// - PALLET_PATTERN_POLICY=warn|reject|ignore (default warn)
func PalletPatternPolicy() string {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("PALLET_PATTERN_POLICY")))
	switch v {
	case "reject", "ignore":
		return v
	}
	return "warn"
}

// PhoneDefaultRegion is the region used to parse customer phone numbers without a country prefix.
//
// Set via env:
// - PHONE_DEFAULT_REGION=US
func PhoneDefaultRegion() string {
	v := strings.ToUpper(strings.TrimSpace(os.Getenv("PHONE_DEFAULT_REGION")))
	if v == "" {
		return "US"
	}
	return v
}

// AllowInactiveCustomerRecords lets service records be logged against deactivated customers
// (late charges after offboarding).
//
// Set via env:
// - ALLOW_INACTIVE_CUSTOMER_RECORDS=true
func AllowInactiveCustomerRecords() bool {
	return envBool("ALLOW_INACTIVE_CUSTOMER_RECORDS")
}

// ServiceTypeCacheHours is the Redis TTL for service type lookups; 0 disables the cache.
func ServiceTypeCacheHours() int {
	return intFromEnv("SERVICE_TYPE_CACHE_HOURS", 24)
}

// CorsAllowedOrigins reads CORS_ALLOWED_ORIGINS as a CSV list.
func CorsAllowedOrigins() []string {
	raw := os.Getenv("CORS_ALLOWED_ORIGINS")
	if strings.TrimSpace(raw) == "" {
		return []string{"http://localhost:3000"}
	}
	var origins []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}

func envBool(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
