// Package model defines the domain types used across the application.
package model

import "time"

// FeedSource is a configured RSS endpoint polled for job entries.
type FeedSource struct {
	Key  string `yaml:"key"`
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// JobEntry is a single normalized item taken from a feed.
type JobEntry struct {
	Title     string
	Link      string
	Published string
}

// Section groups the entries of one source within a digest.
type Section struct {
	Source  FeedSource
	Title   string
	Entries []JobEntry
}

// Digest is the aggregated result of one request or scheduled cycle.
type Digest struct {
	Sections    []Section
	GeneratedAt time.Time
}

// Empty reports whether the digest has no entries at all.
func (d Digest) Empty() bool {
	for _, s := range d.Sections {
		if len(s.Entries) > 0 {
			return false
		}
	}
	return true
}

// EntryCount returns the total number of entries across sections.
func (d Digest) EntryCount() int {
	n := 0
	for _, s := range d.Sections {
		n += len(s.Entries)
	}
	return n
}
