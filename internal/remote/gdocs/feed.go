package gdocs

import (
	"strings"

	"github.com/drivefs/drivefs/internal/remote"
)

const folderScheme = "http://schemas.google.com/g/2005#kind"

type feed struct {
	Links   []link      `xml:"link"`
	Entries []feedEntry `xml:"entry"`
}

type link struct {
	Rel  string `xml:"rel,attr"`
	Href string `xml:"href,attr"`
}

type category struct {
	Scheme string `xml:"scheme,attr"`
	Term   string `xml:"term,attr"`
	Label  string `xml:"label,attr"`
}

type content struct {
	Type string `xml:"type,attr"`
	Src  string `xml:"src,attr"`
}

type feedEntry struct {
	ID         string     `xml:"id"`
	ResourceID string     `xml:"resourceId"`
	Title      string     `xml:"title"`
	Published  string     `xml:"published"`
	Updated    string     `xml:"updated"`
	LastViewed string     `xml:"lastViewed"`
	Content    content    `xml:"content"`
	Categories []category `xml:"category"`
	Inner      string     `xml:",innerxml"`
}

func (f *feed) nextLink() string {
	for _, l := range f.Links {
		if l.Rel == "next" {
			return l.Href
		}
	}
	return ""
}

func (e *feedEntry) isFolder() bool {
	for _, c := range e.Categories {
		if c.Scheme == folderScheme && strings.HasSuffix(c.Term, "#folder") {
			return true
		}
	}
	return false
}

func (e *feedEntry) toEntry() remote.Entry {
	id := e.ResourceID
	if id == "" {
		id = e.ID
	}
	return remote.Entry{
		Name:       strings.TrimSpace(e.Title),
		ID:         id,
		Published:  e.Published,
		Updated:    e.Updated,
		LastViewed: e.LastViewed,
		Raw:        e.Inner,
		ContentURI: e.Content.Src,
		Folder:     e.isFolder(),
	}
}
