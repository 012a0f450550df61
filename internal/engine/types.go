package engine

const watchURLPrefix = "https://www.youtube.com/watch?v="

// Video is a single search candidate from a search provider.
type Video struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	Channel string `json:"channel,omitempty"`
}

// WatchURL returns the canonical watch URL for a video id.
func WatchURL(id string) string {
	return watchURLPrefix + id
}

// NewVideo builds a Video with its canonical URL filled in.
func NewVideo(id, title, channel string) Video {
	return Video{
		ID:      id,
		Title:   TruncateRunes(CleanTitle(title), MaxTitleRunes, "…"),
		URL:     WatchURL(id),
		Channel: CleanTitle(channel),
	}
}
