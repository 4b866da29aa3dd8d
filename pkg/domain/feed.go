package domain

import "time"

// FeedID identifies one external feed polled on a schedule
type FeedID string

// known feeds
const (
	FeedISS    FeedID = "iss"
	FeedAPOD   FeedID = "apod"
	FeedOSDR   FeedID = "osdr"
	FeedImages FeedID = "images"
)

// Entity returns the stored entity the feed writes to
func (f FeedID) Entity() Entity {
	switch f {
	case FeedISS:
		return EntityPositions
	case FeedAPOD:
		return EntityPictures
	case FeedOSDR:
		return EntityDatasets
	case FeedImages:
		return EntityImages
	}
	return ""
}

// TaskStatus is the result of the last fetch cycle of a feed
type TaskStatus string

// task statuses
const (
	StatusNever   TaskStatus = "never"
	StatusSuccess TaskStatus = "success"
	StatusFailure TaskStatus = "failure"
)

// FeedTask is a snapshot of one periodic feed job
type FeedTask struct {
	Feed         FeedID
	Interval     time.Duration
	LastRun      time.Time
	LastStatus   TaskStatus
	LastError    string
	LastDuration time.Duration
	Runs         int
	Failures     int
	Records      int // records written by the last successful cycle
}
