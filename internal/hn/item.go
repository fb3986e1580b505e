package hn

// Item is a single record from the Hacker News items API. The same
// endpoint serves stories, comments, jobs and polls; Type discriminates.
// Fields absent from the API response keep their zero value.
type Item struct {
	ID          int    `json:"id"`
	Type        string `json:"type,omitempty"`
	By          string `json:"by,omitempty"`
	Time        int64  `json:"time,omitempty"`
	Title       string `json:"title,omitempty"`
	URL         string `json:"url,omitempty"`
	Text        string `json:"text,omitempty"`
	Score       int    `json:"score,omitempty"`
	Descendants int    `json:"descendants,omitempty"`
	Parent      int    `json:"parent,omitempty"`
	Kids        []int  `json:"kids,omitempty"`
	Dead        bool   `json:"dead,omitempty"`
	Deleted     bool   `json:"deleted,omitempty"`
}

// IsStory reports whether the item is a live story.
func (it *Item) IsStory() bool {
	return it != nil && it.Type == "story" && !it.Deleted
}

// IsComment reports whether the item is a live comment.
func (it *Item) IsComment() bool {
	return it != nil && it.Type == "comment" && !it.Deleted
}
