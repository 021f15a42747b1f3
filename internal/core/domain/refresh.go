package domain

// RefreshFlags is the set of browser refresh kinds requested by the engine.
type RefreshFlags uint8

const (
	// RefreshPage requests a full page reload.
	RefreshPage RefreshFlags = 1 << iota
	// RefreshStyles requests stylesheets to be reloaded in place.
	RefreshStyles
	// RefreshImages requests images to be reloaded in place.
	RefreshImages
)

// Has reports whether every flag in other is set.
func (f RefreshFlags) Has(other RefreshFlags) bool {
	return f&other == other
}

// Notification converts the flags into the message broadcast to browsers.
func (f RefreshFlags) Notification() Notification {
	return Notification{
		RefreshPage:   f.Has(RefreshPage),
		RefreshStyles: f.Has(RefreshStyles),
		RefreshImages: f.Has(RefreshImages),
	}
}

// Notification is the message sent to every connected browser after a flush.
type Notification struct {
	RefreshPage   bool `json:"refreshPage"`
	RefreshStyles bool `json:"refreshStyles"`
	RefreshImages bool `json:"refreshImages"`
}
