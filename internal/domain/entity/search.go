package entity

// SearchResult is one ranked web-search hit injected into the model context
// and mirrored to the downstream in a web_search_results event. Index is
// 1-based.
type SearchResult struct {
	Index   int    `json:"index"`
	Title   string `json:"title"`
	Href    string `json:"href"`
	Snippet string `json:"snippet"`
}
