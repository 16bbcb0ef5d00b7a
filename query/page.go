package query

// PageIndex is an ordered page of identifiers matching a query, without bodies.
// The remote store names the id list "documents".
type PageIndex struct {
	Page           int      `json:"page" yaml:"page"`
	Limit          int      `json:"limit" yaml:"limit"`
	TotalPages     int      `json:"totalPages" yaml:"totalPages"`
	TotalDocuments int      `json:"totalDocuments" yaml:"totalDocuments"`
	IDs            []string `json:"documents" yaml:"ids"`
}

// Clone returns a copy that does not share the id slice.
func (p PageIndex) Clone() PageIndex {
	out := p
	if p.IDs != nil {
		out.IDs = make([]string, len(p.IDs))
		copy(out.IDs, p.IDs)
	}
	return out
}

// TotalPagesFor returns ceil(total/limit), or zero for a non-positive limit.
func TotalPagesFor(total, limit int) int {
	if limit <= 0 || total <= 0 {
		return 0
	}
	return (total-1)/limit + 1
}
