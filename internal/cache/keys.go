package cache

import "fmt"

// AnalysisKey scopes a cached result to one loaded dataset, so a reload
// never serves results computed over different rows.
func AnalysisKey(datasetVersion, fingerprint string) string {
	return fmt.Sprintf("insightx:analysis:%s:%s", datasetVersion, fingerprint)
}

func RateLimitKey(client string) string {
	return fmt.Sprintf("insightx:ratelimit:%s", client)
}
