package models

import "math"

// Pagination describes one page of a listing.
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

// NewPagination normalises page and limit and computes the page count.
func NewPagination(page, limit int, total int64) Pagination {
	page, limit = NormalizePage(page, limit, 20)
	pages := int((total + int64(limit) - 1) / int64(limit))
	return Pagination{Page: page, Limit: limit, Total: total, Pages: pages}
}

// NormalizePage clamps limit to [1, 100], using def for a missing limit, and page
// to [1, MaxPage(limit)].
func NormalizePage(page, limit, def int) (int, int) {
	if limit <= 0 {
		limit = def
	}
	if limit > 100 {
		limit = 100
	}
	page = max(1, min(page, MaxPage(limit)))
	return page, limit
}

// MaxPage is the largest page whose offset fits in an int.
func MaxPage(limit int) int {
	return math.MaxInt/max(limit, 1) - 1
}

// Offset returns the number of rows to skip for page/limit. Pages out of range
// are clamped first, so the result is never negative.
func Offset(page, limit int) int {
	limit = max(limit, 1)
	page = max(1, min(page, MaxPage(limit)))
	return (page - 1) * limit
}

// Stats are the dashboard counters.
type Stats struct {
	TotalDocuments   int64            `json:"total_documents"`
	DocumentsByState map[Status]int64 `json:"documents_by_status"`
	ProcessingJobs   int64            `json:"processing_jobs"`
	TotalQASessions  int64            `json:"total_qa_sessions"`
	QueuedIngestions int              `json:"queued_ingestions"`
	RecentDocuments  []*Document      `json:"recent_documents"`
	RecentQASessions []*QASession     `json:"recent_qa_sessions"`
}
