// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package value

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Date is a calendar date with a wall-clock instant.
type Date struct {
	t time.Time
}

// NewDate wraps t.
func NewDate(t time.Time) Date { return Date{t: t} }

// Time returns the underlying instant.
func (d Date) Time() time.Time { return d.t }

func (d Date) Kind() Kind       { return KindDate }
func (d Date) TypeID() string   { return TypeDate }
func (d Date) AsString() string { return d.t.Format(time.DateOnly) }
func (d Date) AsBoolean() bool  { return !d.t.IsZero() }
func (d Date) Raw() any         { return d.t }
func (d Date) sealed()          {}

// AsNumber returns the unix timestamp in milliseconds.
func (d Date) AsNumber() (float64, bool) {
	return float64(d.t.UnixMilli()), true
}

// Property implements year, month, day, weekday (Monday=1 .. Sunday=7) and
// timestamp (unix milliseconds).
func (d Date) Property(name string) (Value, bool) {
	switch name {
	case "year":
		return Number(d.t.Year()), true
	case "month":
		return Number(d.t.Month()), true
	case "day":
		return Number(d.t.Day()), true
	case "weekday":
		wd := int(d.t.Weekday())
		if wd == 0 {
			wd = 7
		}
		return Number(wd), true
	case "timestamp":
		return Number(d.t.UnixMilli()), true
	}
	return nil, false
}

// Clock is a time of day.
type Clock struct {
	Hour   int
	Minute int
}

func (c Clock) Kind() Kind                { return KindTime }
func (c Clock) TypeID() string            { return TypeTime }
func (c Clock) AsString() string          { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }
func (c Clock) AsNumber() (float64, bool) { return float64(c.Hour*60 + c.Minute), true }
func (c Clock) AsBoolean() bool           { return true }
func (c Clock) Raw() any                  { return c }
func (c Clock) sealed()                   {}

// Property implements hour and minute.
func (c Clock) Property(name string) (Value, bool) {
	switch name {
	case "hour":
		return Number(c.Hour), true
	case "minute":
		return Number(c.Minute), true
	}
	return nil, false
}

// Coordinate is a point on screen or in a plane.
type Coordinate struct {
	X float64
	Y float64
}

func (c Coordinate) Kind() Kind                { return KindCoordinate }
func (c Coordinate) TypeID() string            { return TypeCoordinate }
func (c Coordinate) AsNumber() (float64, bool) { return 0, false }
func (c Coordinate) AsBoolean() bool           { return true }
func (c Coordinate) Raw() any                  { return c }
func (c Coordinate) sealed()                   {}

func (c Coordinate) AsString() string {
	return formatNumber(c.X) + "," + formatNumber(c.Y)
}

// Property implements x and y.
func (c Coordinate) Property(name string) (Value, bool) {
	switch name {
	case "x":
		return Number(c.X), true
	case "y":
		return Number(c.Y), true
	}
	return nil, false
}

// Region is an axis-aligned rectangle.
type Region struct {
	Left   float64
	Top    float64
	Right  float64
	Bottom float64
}

func (r Region) Kind() Kind                { return KindRegion }
func (r Region) TypeID() string            { return TypeCoordinateRegion }
func (r Region) AsNumber() (float64, bool) { return 0, false }
func (r Region) AsBoolean() bool           { return !r.empty() }
func (r Region) Raw() any                  { return r }
func (r Region) sealed()                   {}

func (r Region) AsString() string {
	return fmt.Sprintf("%s,%s,%s,%s", formatNumber(r.Left), formatNumber(r.Top), formatNumber(r.Right), formatNumber(r.Bottom))
}

func (r Region) empty() bool {
	return r.Right <= r.Left || r.Bottom <= r.Top
}

// Center returns the midpoint of the region.
func (r Region) Center() Coordinate {
	return Coordinate{X: (r.Left + r.Right) / 2, Y: (r.Top + r.Bottom) / 2}
}

// Property implements the region edges, size, center and validity checks.
func (r Region) Property(name string) (Value, bool) {
	switch name {
	case "left":
		return Number(r.Left), true
	case "top":
		return Number(r.Top), true
	case "right":
		return Number(r.Right), true
	case "bottom":
		return Number(r.Bottom), true
	case "width", "w":
		return Number(r.Right - r.Left), true
	case "height", "h":
		return Number(r.Bottom - r.Top), true
	case "center", "center_point":
		return r.Center(), true
	case "center_x", "x":
		return Number(r.Center().X), true
	case "center_y", "y":
		return Number(r.Center().Y), true
	case "as_string", "string":
		return String(r.AsString()), true
	case "is_empty", "isEmpty":
		return Boolean(r.empty()), true
	case "is_valid", "isValid":
		return Boolean(!r.empty()), true
	}
	return nil, false
}

// Image is an image file on disk. Dimensions are decoded from the file
// header on first access.
type Image struct {
	path string

	once   sync.Once
	width  int
	height int
	ok     bool
}

// NewImage references the image at path.
func NewImage(path string) *Image {
	return &Image{path: path}
}

// Path returns the file path.
func (i *Image) Path() string { return i.path }

func (i *Image) Kind() Kind                { return KindImage }
func (i *Image) TypeID() string            { return TypeImage }
func (i *Image) AsString() string          { return i.path }
func (i *Image) AsNumber() (float64, bool) { return 0, false }
func (i *Image) AsBoolean() bool           { return i.path != "" }
func (i *Image) Raw() any                  { return i.path }
func (i *Image) sealed()                   {}

func (i *Image) decode() {
	i.once.Do(func() {
		f, err := os.Open(i.path)
		if err != nil {
			return
		}
		defer f.Close()
		cfg, _, err := image.DecodeConfig(f)
		if err != nil {
			return
		}
		i.width, i.height, i.ok = cfg.Width, cfg.Height, true
	})
}

// Property implements path, name, uri, size, width and height. Properties
// that cannot be read from disk resolve to Null.
func (i *Image) Property(name string) (Value, bool) {
	switch name {
	case "path":
		return String(i.path), true
	case "name":
		return String(filepath.Base(i.path)), true
	case "uri":
		abs, err := filepath.Abs(i.path)
		if err != nil {
			return Null, true
		}
		return String((&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()), true
	case "size":
		info, err := os.Stat(i.path)
		if err != nil {
			return Null, true
		}
		return Number(info.Size()), true
	case "width", "height":
		i.decode()
		if !i.ok {
			return Null, true
		}
		if name == "width" {
			return Number(i.width), true
		}
		return Number(i.height), true
	}
	return nil, false
}
