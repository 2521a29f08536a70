package engine

// EventKind discriminates inbound events.
type EventKind string

const (
	// EventText is a free-form text message.
	EventText EventKind = "text"
	// EventSelection is a menu button press, carrying a key and payload.
	EventSelection EventKind = "selection"
	// EventPhoto is a photo upload, carrying a channel photo reference.
	EventPhoto EventKind = "photo"
)

// Selection keys used in menu callbacks. The wire form is "key|payload".
const (
	SelectMenu          = "menu"
	SelectAge           = "age"
	SelectGender        = "gender"
	SelectCategory      = "cat"
	SelectCategoryPage  = "cat_page"
	SelectLocation      = "loc"
	SelectLocationPage  = "loc_page"
	SelectLocationOther = "loc_other"
	SelectFeedback      = "fb"
	SelectAdmin         = "admin"
)

// Menu payloads for SelectMenu.
const (
	MenuSurvey  = "survey"
	MenuSupport = "support"
	MenuAdmin   = "admin"
)

// Admin payloads for SelectAdmin.
const (
	AdminBroadcast = "broadcast"
	AdminStats     = "stats"
	AdminSupport   = "support"
)

// Event is one inbound user interaction.
type Event struct {
	Kind EventKind
	// Text holds the message text for EventText.
	Text string
	// Key and Payload hold the parsed selection for EventSelection.
	Key     string
	Payload string
	// PhotoID holds the channel photo reference for EventPhoto.
	PhotoID string
}

// TextEvent builds a free-text event.
func TextEvent(text string) Event {
	return Event{Kind: EventText, Text: text}
}

// SelectionEvent builds a menu selection event.
func SelectionEvent(key, payload string) Event {
	return Event{Kind: EventSelection, Key: key, Payload: payload}
}

// PhotoEvent builds a photo event.
func PhotoEvent(photoID string) Event {
	return Event{Kind: EventPhoto, PhotoID: photoID}
}
