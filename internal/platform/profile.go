// internal/platform/profile.go
package platform

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/xkilldash9x/postpilot/api/schemas"
	"github.com/xkilldash9x/postpilot/internal/inject"
	"github.com/xkilldash9x/postpilot/internal/locator"
	"github.com/xkilldash9x/postpilot/internal/session"
)

// Field is the static plan for filling one semantic role.
type Field struct {
	Role   schemas.Role
	Target locator.Descriptor
	// Verify is read back instead of Target when the written surface differs
	// from the clicked one, as with a script editor and its iframe body.
	Verify *locator.Descriptor

	Technique inject.Technique
	Mode      inject.Mode
	// Input overrides the configured input method for this field.
	Input    inject.InputMethod
	EditorID string

	// Option is the CATEGORY_OPTION template for option-list fields.
	Option locator.Descriptor

	// Wait is how long the target may take to appear before the locate step
	// gives up.
	Wait time.Duration
	// Before runs right before the target is located.
	Before []Step
}

// VerifyDescriptor returns the descriptor read back during verification.
func (f Field) VerifyDescriptor() locator.Descriptor {
	if f.Verify != nil {
		return *f.Verify
	}
	return f.Target
}

// Profile bundles everything postpilot knows about one blogging platform.
type Profile struct {
	Name string
	// WriteURLTemplate contains "{id}", replaced by the escaped blog id.
	WriteURLTemplate string
	LoginURL         string
	HomeURL          string
	LoginPatterns    []string
	Markers          []session.Marker
	AuthFile         string
	BlogID           string
	DefaultCategory  string

	Title           Field
	Body            Field
	CategoryTrigger *Field
	Tags            *Field

	// Prep runs after the write page loaded and the session gate passed.
	Prep []Step
	// Finalize runs after verification. It must never publish.
	Finalize []Step

	// Probes are the selectors counted in every diagnostic snapshot.
	Probes []string
}

// WriteURL returns the editor URL for blogID, falling back to the
// configured blog id.
func (p *Profile) WriteURL(blogID string) (string, error) {
	blogID = strings.TrimSpace(blogID)
	if blogID == "" {
		blogID = strings.TrimSpace(p.BlogID)
	}
	if blogID == "" {
		return "", schemas.Errorf(schemas.KindPrecondition, "write url",
			"no blog id configured for %s (set platforms.%s.blog_id or --blog-id)", p.Name, p.Name)
	}
	return strings.ReplaceAll(p.WriteURLTemplate, "{id}", url.PathEscape(blogID)), nil
}

// IsLoginURL reports whether u is one of the platform's login pages.
func (p *Profile) IsLoginURL(u string) bool {
	return session.IsLoginURL(u, p.LoginPatterns)
}

// Fields returns the fields to fill for doc, in fill order. Category and
// tags are only included when the document carries them.
func (p *Profile) Fields(hasCategory, hasTags bool) []Field {
	fields := []Field{p.Title, p.Body}
	if hasCategory && p.CategoryTrigger != nil {
		fields = append(fields, *p.CategoryTrigger)
	}
	if hasTags && p.Tags != nil {
		fields = append(fields, *p.Tags)
	}
	return fields
}

// Supports reports whether the platform has a control for role.
func (p *Profile) Supports(role schemas.Role) bool {
	switch role {
	case schemas.RoleTitleField, schemas.RoleBodyEditor:
		return true
	case schemas.RoleCategoryTrigger, schemas.RoleCategoryOption:
		return p.CategoryTrigger != nil
	case schemas.RoleTagInput:
		return p.Tags != nil
	}
	return false
}

func (p *Profile) String() string { return fmt.Sprintf("platform(%s)", p.Name) }
