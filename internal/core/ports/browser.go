package ports

// BrowserOpener opens URLs in the user's browser.
//
//go:generate mockgen -source=browser.go -destination=mocks/mock_browser.go -package=mocks
type BrowserOpener interface {
	Open(url string) error
}
