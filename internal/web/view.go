package web

import (
	"fmt"
	"path"
	"strings"

	"github.com/vbonduro/adpost/internal/fields"
	"github.com/vbonduro/adpost/internal/form"
	"github.com/vbonduro/adpost/internal/photos"
)

const msgPhotosMandatory = "This field is mandatory"

// fieldView is everything a template needs to render one scalar field.
type fieldView struct {
	*fields.Definition
	Value string
	Error string
	Count int
}

func (f fieldView) Selected(value string) bool { return f.Value == value }

func (f fieldView) IsChoice() bool { return f.Kind == fields.KindChoice }

func (f fieldView) IsSelect() bool { return f.Kind == fields.KindSelect }

// InputMode hints the on-screen keyboard for numeric fields.
func (f fieldView) InputMode() string {
	if f.Kind == fields.KindNumeric {
		return "numeric"
	}
	return "text"
}

// Multiline reports whether the field is edited in a textarea.
func (f fieldView) Multiline() bool {
	return f.Kind == fields.KindText && f.MaxLength > 200
}

type photoView struct {
	Index   int
	Name    string
	Size    int64
	Version string
}

type photosView struct {
	Field         *fields.Definition
	Entries       []photoView
	Slots         []int
	Status        string
	StatusIsError bool
	Error         string
	Accept        string
}

type sectionView struct {
	Title  string
	Fields []fieldView
	Photos *photosView
}

type submitView struct {
	Enabled bool
	OOB     bool
}

type formView struct {
	Sections []sectionView
	Submit   submitView
	Banner   string
}

// pageView wraps the data of a full page rendered through base.html.
type pageView struct {
	Title     string
	ActiveNav string
	Data      any
}

// fieldResponse is the payload of a partial update: one field (or its
// feedback line) plus the out-of-band submit button.
type fieldResponse struct {
	Field  fieldView
	Submit submitView
}

type photosResponse struct {
	Photos *photosView
	Submit submitView
}

func newFieldView(c *form.Controller, def *fields.Definition) fieldView {
	return fieldView{
		Definition: def,
		Value:      c.Value(def.Name),
		Error:      c.Error(def.Name),
		Count:      c.Count(def.Name),
	}
}

func newPhotosView(c *form.Controller, def *fields.Definition) *photosView {
	pm := c.Photos()
	v := &photosView{
		Field:  def,
		Error:  c.Error(def.Name),
		Accept: "image/jpeg,image/png,image/jpg,image/webp",
	}
	for i, e := range pm.Entries() {
		v.Entries = append(v.Entries, photoView{
			Index:   i,
			Name:    e.Name,
			Size:    e.Size,
			Version: previewVersion(e.Preview),
		})
	}
	for i := len(v.Entries); i < photos.MaxPhotos; i++ {
		v.Slots = append(v.Slots, i)
	}

	switch {
	case pm.Message() != "":
		v.Status, v.StatusIsError = pm.Message(), true
	case pm.Len() == 0:
		v.Status, v.StatusIsError = msgPhotosMandatory, true
	default:
		v.Status = fmt.Sprintf("%d of %d photos added", pm.Len(), photos.MaxPhotos)
	}
	return v
}

// previewVersion identifies a preview blob in URLs without exposing its key.
func previewVersion(key string) string {
	return strings.TrimSuffix(path.Base(key), path.Ext(key))
}

func newSubmitView(c *form.Controller, oob bool) submitView {
	return submitView{Enabled: c.CanSubmit(), OOB: oob}
}

func newFormView(c *form.Controller) formView {
	v := formView{Submit: newSubmitView(c, false)}
	for _, sec := range c.Registry().Sections() {
		sv := sectionView{Title: sec.Title}
		for _, def := range sec.Fields {
			if def.Scalar() {
				sv.Fields = append(sv.Fields, newFieldView(c, def))
				continue
			}
			sv.Photos = newPhotosView(c, def)
		}
		v.Sections = append(v.Sections, sv)
	}
	return v
}
