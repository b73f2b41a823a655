// Package feed renders stored posts as JSON feed items and as an RSS 2.0
// document.
package feed

import (
	"encoding/xml"
	"fmt"
	"time"

	"speedrss/internal/domain"
)

const (
	// ChannelTitle is the RSS channel title.
	ChannelTitle = "SpeedRSS"
	// ChannelDescription is the RSS channel description.
	ChannelDescription = "SpeedRSS: fast RSS transmitter. X posts (author, title, content). AI-friendly feed."

	// pubDateFormat is RFC1123 with an explicit GMT zone, per feed convention.
	pubDateFormat = "Mon, 02 Jan 2006 15:04:05 GMT"
)

// Item is the JSON rendering of one post.
type Item struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	SourceURL string    `json:"sourceUrl"`
	CreatedAt time.Time `json:"createdAt"`
}

// FromPost converts a stored post to its feed item shape.
func FromPost(post domain.Post) Item {
	return Item{
		ID:        post.ID,
		Author:    post.Author,
		Title:     post.Title,
		Content:   post.Content,
		SourceURL: post.SourceURL,
		CreatedAt: post.CreatedAt,
	}
}

// FromPosts converts a post listing, preserving order.
func FromPosts(posts []domain.Post) []Item {
	items := make([]Item, len(posts))
	for i, post := range posts {
		items[i] = FromPost(post)
	}
	return items
}

type rssDocument struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	AtomNS  string     `xml:"xmlns:atom,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title       string    `xml:"title"`
	Link        string    `xml:"link"`
	Description string    `xml:"description"`
	AtomLink    atomLink  `xml:"atom:link"`
	Items       []rssItem `xml:"item"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

type rssItem struct {
	Title       string  `xml:"title"`
	Link        string  `xml:"link"`
	Description string  `xml:"description"`
	PubDate     string  `xml:"pubDate"`
	GUID        rssGUID `xml:"guid"`
}

type rssGUID struct {
	IsPermaLink string `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

// RenderRSS builds the RSS 2.0 document for the given posts. baseURL is the
// public origin of the service and selfURL the absolute URL of the feed
// itself (used for the atom self link). Reserved XML characters in all text
// fields are escaped by the encoder.
func RenderRSS(baseURL, selfURL string, posts []domain.Post) ([]byte, error) {
	items := make([]rssItem, len(posts))
	for i, post := range posts {
		items[i] = rssItem{
			Title:       post.Title,
			Link:        post.SourceURL,
			Description: post.Content,
			PubDate:     post.CreatedAt.UTC().Format(pubDateFormat),
			GUID: rssGUID{
				IsPermaLink: "true",
				Value:       post.SourceURL,
			},
		}
	}

	doc := rssDocument{
		Version: "2.0",
		AtomNS:  "http://www.w3.org/2005/Atom",
		Channel: rssChannel{
			Title:       ChannelTitle,
			Link:        baseURL + "/feed",
			Description: ChannelDescription,
			AtomLink: atomLink{
				Href: selfURL,
				Rel:  "self",
				Type: "application/rss+xml",
			},
			Items: items,
		},
	}

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal rss: %w", err)
	}

	return append([]byte(xml.Header), body...), nil
}
