package engine

// State identifies a position in the conversation state machine.
type State string

const (
	// StateRoot is the initial and terminal state: main menu shown,
	// free text falls through to the chat path.
	StateRoot State = "root"

	StateAwaitingAge                 State = "awaiting_age"
	StateAwaitingGender              State = "awaiting_gender"
	StateAwaitingCategories          State = "awaiting_categories"
	StateAwaitingLocation            State = "awaiting_location"
	StateAwaitingCustomLocation      State = "awaiting_custom_location"
	StateAwaitingFeedback            State = "awaiting_feedback"
	StateAwaitingSupportMessage      State = "awaiting_support_message"
	StateAwaitingSupportPhotoCaption State = "awaiting_support_photo_caption"
	StateAwaitingAdminBroadcastText  State = "awaiting_admin_broadcast_text"
)

// Accumulated carries per-session transient answers not yet committed
// to the durable profile. It is owned by the session store and passed
// by value through Handle.
type Accumulated struct {
	// Categories collected so far, capped at three, no duplicates.
	Categories []string
	// PhotoID is a pending support photo reference awaiting a caption.
	PhotoID string
	// CategoryPage and LocationPage are menu page cursors only; they
	// never affect committed state.
	CategoryPage int
	LocationPage int
}
