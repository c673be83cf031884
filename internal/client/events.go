package client

import (
	"strconv"
	"strings"

	"eventrec/recommender/internal/domain"

	"github.com/goccy/go-json"
)

// searchResponse mirrors the parts of the Discovery API event search
// response that are turned into items.
type searchResponse struct {
	Embedded *struct {
		Events []event `json:"events"`
	} `json:"_embedded"`
}

type event struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	URL             string           `json:"url"`
	Rating          *float64         `json:"rating"`
	Distance        *float64         `json:"distance"`
	Images          []image          `json:"images"`
	Classifications []classification `json:"classifications"`
	Embedded        *struct {
		Venues []venue `json:"venues"`
	} `json:"_embedded"`
}

type image struct {
	URL string `json:"url"`
}

type classification struct {
	Segment *struct {
		Name string `json:"name"`
	} `json:"segment"`
}

type venue struct {
	Address *struct {
		Line1 string `json:"line1"`
		Line2 string `json:"line2"`
		Line3 string `json:"line3"`
	} `json:"address"`
	City *struct {
		Name string `json:"name"`
	} `json:"city"`
	Location *struct {
		Latitude  string `json:"latitude"`
		Longitude string `json:"longitude"`
	} `json:"location"`
}

// parseEvents converts a search response body into items. Distance is
// recomputed from (lat, lon) when the venue location is known, since the
// API measures from the geohash cell rather than the exact point.
func parseEvents(body []byte, lat, lon float64) ([]domain.Item, error) {
	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	if resp.Embedded == nil {
		return []domain.Item{}, nil
	}

	items := make([]domain.Item, 0, len(resp.Embedded.Events))
	for _, e := range resp.Embedded.Events {
		item := domain.Item{
			ID:         e.ID,
			Name:       e.Name,
			URL:        e.URL,
			Address:    e.address(),
			ImageURL:   e.imageURL(),
			Categories: e.categories(),
		}
		if e.Rating != nil {
			item.Rating = *e.Rating
		}
		if e.Distance != nil {
			item.Distance = *e.Distance
		}
		if venueLat, venueLon, ok := e.location(); ok {
			item.Latitude, item.Longitude = venueLat, venueLon
			item.Distance = domain.Distance(lat, lon, venueLat, venueLon)
		}
		items = append(items, item)
	}
	return items, nil
}

// address returns the first non-empty venue address: street lines and city
// joined by newlines.
func (e event) address() string {
	if e.Embedded == nil {
		return ""
	}
	for _, v := range e.Embedded.Venues {
		var parts []string
		if v.Address != nil {
			for _, line := range []string{v.Address.Line1, v.Address.Line2, v.Address.Line3} {
				if line != "" {
					parts = append(parts, line)
				}
			}
		}
		if v.City != nil && v.City.Name != "" {
			parts = append(parts, v.City.Name)
		}
		if len(parts) > 0 {
			return strings.Join(parts, "\n")
		}
	}
	return ""
}

func (e event) imageURL() string {
	for _, img := range e.Images {
		if img.URL != "" {
			return img.URL
		}
	}
	return ""
}

func (e event) categories() domain.StringSet {
	categories := domain.NewStringSet()
	for _, c := range e.Classifications {
		if c.Segment != nil && c.Segment.Name != "" {
			categories.Add(c.Segment.Name)
		}
	}
	return categories
}

func (e event) location() (float64, float64, bool) {
	if e.Embedded == nil {
		return 0, 0, false
	}
	for _, v := range e.Embedded.Venues {
		if v.Location == nil {
			continue
		}
		lat, latErr := strconv.ParseFloat(v.Location.Latitude, 64)
		lon, lonErr := strconv.ParseFloat(v.Location.Longitude, 64)
		if latErr == nil && lonErr == nil {
			return lat, lon, true
		}
	}
	return 0, 0, false
}
