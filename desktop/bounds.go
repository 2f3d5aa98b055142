// Package desktop implements the OS integration the relay needs: launching on
// login, the launcher badge, and the browser window that hosts the web page.
package desktop

import "fmt"

// Bounds is a window rectangle in screen pixels.
type Bounds struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Empty reports whether the rectangle has no area.
func (b Bounds) Empty() bool {
	return b.Width <= 0 || b.Height <= 0
}

func (b Bounds) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", b.Width, b.Height, b.X, b.Y)
}
