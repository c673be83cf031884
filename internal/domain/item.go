package domain

// Item is a point of interest (an event or a venue) returned by a search.
// Two items are the same item when their IDs are equal.
type Item struct {
	ID         string    `json:"item_id"`
	Name       string    `json:"name"`
	Address    string    `json:"address"`
	ImageURL   string    `json:"image_url"`
	URL        string    `json:"url"`
	Rating     float64   `json:"rating"`
	Distance   float64   `json:"distance"` // miles from the query point
	Categories StringSet `json:"categories"`

	// Venue location, zero when the source did not report one
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}

// HasLocation reports whether the venue coordinates are known.
func (i Item) HasLocation() bool {
	return i.Latitude != 0 || i.Longitude != 0
}
