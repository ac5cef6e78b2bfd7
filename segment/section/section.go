// Package section defines the fixed horizontal bands a page screenshot is
// split into and the pixel geometry of each band.
package section

import (
	"fmt"
	"image"
	"strings"
)

// Section is one horizontal band of a page screenshot.
type Section string

const (
	Header Section = "header"
	Body   Section = "body"
	Footer Section = "footer"
)

// DefaultBandHeight is the height in pixels of the header and footer bands.
const DefaultBandHeight = 100

// All returns the sections in their fixed order.
func All() []Section {
	return []Section{Header, Body, Footer}
}

// Parse validates a section label. It is case-insensitive.
func Parse(s string) (Section, error) {
	switch Section(strings.ToLower(strings.TrimSpace(s))) {
	case Header:
		return Header, nil
	case Body:
		return Body, nil
	case Footer:
		return Footer, nil
	}
	return "", fmt.Errorf("section: unknown section %q", s)
}

func (s Section) String() string { return string(s) }

// Upper is the label used in ranking reports ("HEADER").
func (s Section) Upper() string { return strings.ToUpper(string(s)) }

// Band returns the rectangle of s inside bounds. The header is the top
// bandHeight rows, the footer the bottom bandHeight rows and the body
// everything in between. ok is false when the band is empty, which happens
// for the body of a page shorter than two bands.
func (s Section) Band(bounds image.Rectangle, bandHeight int) (r image.Rectangle, ok bool) {
	if bandHeight <= 0 {
		bandHeight = DefaultBandHeight
	}
	minY, maxY := bounds.Min.Y, bounds.Max.Y

	switch s {
	case Header:
		r = image.Rect(bounds.Min.X, minY, bounds.Max.X, min(minY+bandHeight, maxY))
	case Body:
		// image.Rect would swap inverted coordinates into a strip that
		// overlaps the header.
		if maxY-bandHeight <= minY+bandHeight {
			return image.Rectangle{}, false
		}
		r = image.Rect(bounds.Min.X, minY+bandHeight, bounds.Max.X, maxY-bandHeight)
	case Footer:
		r = image.Rect(bounds.Min.X, max(maxY-bandHeight, minY), bounds.Max.X, maxY)
	default:
		return image.Rectangle{}, false
	}
	r = r.Intersect(bounds)
	return r, !r.Empty()
}
