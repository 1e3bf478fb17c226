package models

import "strings"

// DocumentSort is a column a document listing can be ordered by.
type DocumentSort string

const (
	SortCreatedAt DocumentSort = "created_at"
	SortTitle     DocumentSort = "title"
	SortFilename  DocumentSort = "filename"
	SortFileSize  DocumentSort = "file_size"
	SortStatus    DocumentSort = "status"
)

var documentSorts = map[string]DocumentSort{
	"":           SortCreatedAt,
	"created_at": SortCreatedAt,
	"createdat":  SortCreatedAt,
	"title":      SortTitle,
	"filename":   SortFilename,
	"file_size":  SortFileSize,
	"filesize":   SortFileSize,
	"status":     SortStatus,
}

// ParseDocumentSort accepts snake_case or camelCase column names. Empty means created_at.
func ParseDocumentSort(s string) (DocumentSort, bool) {
	sort, ok := documentSorts[strings.ToLower(strings.TrimSpace(s))]
	return sort, ok
}

// ParseStatus accepts one of the four ingestion statuses, or empty for any.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case "", StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return st, true
	}
	return "", false
}

// DocumentQuery selects one page of a document listing.
type DocumentQuery struct {
	OwnerID string
	Status  Status // empty matches every status
	// Search matches a case-insensitive substring of the title or filename.
	Search    string
	Sort      DocumentSort
	Ascending bool
	Page      int
	Limit     int
}

// SortOrDefault returns the sort column, falling back to created_at for an unknown one.
func (q DocumentQuery) SortOrDefault() DocumentSort {
	if sort, ok := ParseDocumentSort(string(q.Sort)); ok {
		return sort
	}
	return SortCreatedAt
}

// Matches reports whether doc passes the status, owner and search filters.
func (q DocumentQuery) Matches(doc *Document) bool {
	if q.OwnerID != "" && doc.OwnerID != q.OwnerID {
		return false
	}
	if q.Status != "" && doc.Status != q.Status {
		return false
	}
	if q.Search == "" {
		return true
	}
	term := strings.ToLower(q.Search)
	return strings.Contains(strings.ToLower(doc.Title), term) ||
		strings.Contains(strings.ToLower(doc.Filename), term)
}
