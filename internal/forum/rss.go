package forum

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// RSSParser reads the forum's RSS feed of recent threads. Scraping the feed
// instead of the HTML front page keeps the parsing stable across forum skin
// changes.
type RSSParser struct{}

type rssDoc struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title   string `xml:"title"`
	Link    string `xml:"link"`
	Creator string `xml:"creator"`
	GUID    string `xml:"guid"`
}

// Threads decodes an RSS document into threads. Items without a link are
// skipped; the GUID (falling back to the link) identifies a thread across
// polls.
func (RSSParser) Threads(body []byte) ([]Thread, error) {
	var doc rssDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("feed is not valid XML: %w", err)
	}

	threads := make([]Thread, 0, len(doc.Channel.Items))
	for _, item := range doc.Channel.Items {
		link := strings.TrimSpace(item.Link)
		if link == "" {
			continue
		}
		id := strings.TrimSpace(item.GUID)
		if id == "" {
			id = link
		}
		threads = append(threads, Thread{
			ID:     id,
			Title:  strings.TrimSpace(item.Title),
			Author: strings.TrimSpace(item.Creator),
			URL:    link,
		})
	}
	return threads, nil
}
