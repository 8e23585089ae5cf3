package domain

// DocumentStatusPublished is the only status scanned and rewritten.
const DocumentStatusPublished = "publish"

// Document is a content item owned by the hosting document store.
type Document struct {
	ID      int64  `db:"id"      json:"id"`
	Type    string `db:"type"    json:"type"`
	Status  string `db:"status"  json:"status"`
	Content string `db:"content" json:"content"`
}
