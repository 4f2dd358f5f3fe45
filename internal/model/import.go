package model

// ImportResult summarizes one import batch.
type ImportResult struct {
	Total     int      `json:"total"`
	Imported  int      `json:"imported"`
	Matched   int      `json:"matched"`
	Unmatched int      `json:"unmatched"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors"`
}
