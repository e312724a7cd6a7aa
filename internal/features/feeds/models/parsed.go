package models

// ParsedFeed is the normalized result of fetching and parsing a feed document
type ParsedFeed struct {
	Title       string       `json:"title"`
	Link        string       `json:"link"`
	Description string       `json:"description"`
	Items       []ParsedItem `json:"items"`
}

// ParsedItem carries the fields of one item used for identity and display.
// IsoDate is an RFC 3339 timestamp when the parser could resolve one;
// PubDate is the publication date exactly as the document stated it.
type ParsedItem struct {
	GUID    string `json:"guid"`
	Title   string `json:"title"`
	Link    string `json:"link"`
	Author  string `json:"author"`
	PubDate string `json:"pubDate"`
	IsoDate string `json:"isoDate"`
}
