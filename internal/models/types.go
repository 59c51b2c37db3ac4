package models

// MediaType represents the format of a media item as reported by the tracker
type MediaType string

const (
	MediaTypeTV      MediaType = "TV"
	MediaTypeMovie   MediaType = "MOVIE"
	MediaTypeOVA     MediaType = "OVA"
	MediaTypeONA     MediaType = "ONA"
	MediaTypeSpecial MediaType = "SPECIAL"
)

// TrackingStatus represents the coarse watch status kept by the tracking service
type TrackingStatus string

const (
	StatusNone      TrackingStatus = ""
	StatusCurrent   TrackingStatus = "CURRENT"
	StatusPlanning  TrackingStatus = "PLANNING"
	StatusCompleted TrackingStatus = "COMPLETED"
	StatusDropped   TrackingStatus = "DROPPED"
	StatusPaused    TrackingStatus = "PAUSED"
	StatusRepeating TrackingStatus = "REPEATING"
)

// Valid reports whether s is one of the statuses the tracking service accepts
func (s TrackingStatus) Valid() bool {
	switch s {
	case StatusCurrent, StatusPlanning, StatusCompleted, StatusDropped, StatusPaused, StatusRepeating:
		return true
	}
	return false
}

// DeriveStatus maps the furthest episode reached to the status reported upstream.
// COMPLETED only when the total is known and has been reached.
func DeriveStatus(episodeReached, totalEpisodes int) TrackingStatus {
	if totalEpisodes > 0 && episodeReached >= totalEpisodes {
		return StatusCompleted
	}
	return StatusCurrent
}

// Trigger identifies what caused a status transition
type Trigger string

const (
	TriggerProgress   Trigger = "progress"   // first qualifying progress tick
	TriggerCompletion Trigger = "completion" // episode completed
	TriggerWatch      Trigger = "watch"      // explicit "watch" action
	TriggerPlan       Trigger = "plan"       // explicit "add to plan" action
)

// Automatic reports whether the trigger comes from playback rather than the user
func (t Trigger) Automatic() bool {
	return t == TriggerProgress || t == TriggerCompletion
}

// CanTransition reports whether the client may move a media item from one status to another.
// Automatic triggers never leave COMPLETED or DROPPED.
func CanTransition(from, to TrackingStatus, trigger Trigger) bool {
	if to == StatusPlanning {
		return trigger == TriggerPlan
	}
	if trigger.Automatic() && (from == StatusCompleted || from == StatusDropped) {
		return false
	}

	switch to {
	case StatusCurrent:
		switch from {
		case StatusNone, StatusPlanning, StatusPaused, StatusRepeating, StatusCurrent:
			return true
		case StatusDropped:
			return trigger == TriggerWatch
		}
		return false
	case StatusCompleted:
		return from != StatusDropped || trigger == TriggerWatch
	}
	return false
}
