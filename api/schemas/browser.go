// api/schemas/browser.go
package schemas

// CookieSameSite defines the SameSite attribute for cookies.
type CookieSameSite string

const (
	CookieSameSiteStrict CookieSameSite = "Strict"
	CookieSameSiteLax    CookieSameSite = "Lax"
	CookieSameSiteNone   CookieSameSite = "None"
)

// Cookie represents a browser cookie. The field names follow the storage-state
// layout written by Playwright so both formats decode into the same struct.
type Cookie struct {
	Name     string         `json:"name" yaml:"name"`
	Value    string         `json:"value" yaml:"value"`
	Domain   string         `json:"domain" yaml:"domain"`
	Path     string         `json:"path" yaml:"path"`
	Expires  float64        `json:"expires" yaml:"expires"`
	HTTPOnly bool           `json:"httpOnly" yaml:"httpOnly"`
	Secure   bool           `json:"secure" yaml:"secure"`
	Session  bool           `json:"session,omitempty" yaml:"session,omitempty"`
	SameSite CookieSameSite `json:"sameSite,omitempty" yaml:"sameSite,omitempty"`
}

// StorageItem is a single localStorage entry.
type StorageItem struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// OriginState holds the localStorage of one origin.
type OriginState struct {
	Origin       string        `json:"origin" yaml:"origin"`
	LocalStorage []StorageItem `json:"localStorage" yaml:"localStorage"`
}

// StorageState captures the authenticated state of a browser context.
type StorageState struct {
	Cookies []*Cookie     `json:"cookies" yaml:"cookies"`
	Origins []OriginState `json:"origins" yaml:"origins"`
}

// ElementGeometry is the bounding box of an element in top-level viewport
// coordinates (CSS pixels).
type ElementGeometry struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the midpoint of the box.
func (g ElementGeometry) Center() (float64, float64) {
	return g.X + g.Width/2, g.Y + g.Height/2
}
