// Package form holds the state of one ad being composed: field values, the
// error shown next to each field, and which fields the user has visited.
// All mutation goes through Controller, which decides when each field is
// validated.
package form

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"unicode/utf8"

	"github.com/vbonduro/adpost/internal/domain"
	"github.com/vbonduro/adpost/internal/fields"
	"github.com/vbonduro/adpost/internal/photos"
)

// State is the mutable part of a form. Values holds every scalar field
// (unset fields map to ""); Errors holds only fields with a current error.
type State struct {
	Values  map[string]string
	Errors  map[string]string
	Touched map[string]bool
}

func (s State) clone() State {
	return State{
		Values:  maps.Clone(s.Values),
		Errors:  maps.Clone(s.Errors),
		Touched: maps.Clone(s.Touched),
	}
}

// Submission is the payload handed to the Submitter once every field is valid.
type Submission struct {
	Fields map[string]string
	Photos []photos.Entry
}

// Submitter publishes a finished ad.
type Submitter interface {
	SubmitAd(ctx context.Context, sub Submission) (*domain.Ad, error)
}

// Result reports the outcome of Submit. Accepted is false when validation
// blocked the submission; the errors are then visible in the state.
type Result struct {
	Accepted bool
	Ad       *domain.Ad
}

// Controller is not safe for concurrent use; callers serialize access.
type Controller struct {
	registry  *fields.Registry
	photos    *photos.Manager
	submitter Submitter
	state     State
	logger    *slog.Logger
}

func NewController(registry *fields.Registry, pm *photos.Manager, submitter Submitter, logger *slog.Logger) *Controller {
	c := &Controller{
		registry:  registry,
		photos:    pm,
		submitter: submitter,
		logger:    logger,
	}
	c.state = c.defaults()
	return c
}

func (c *Controller) defaults() State {
	s := State{
		Values:  make(map[string]string),
		Errors:  make(map[string]string),
		Touched: make(map[string]bool),
	}
	for _, d := range c.registry.Fields() {
		if d.Scalar() {
			s.Values[d.Name] = ""
		}
	}
	return s
}

func (c *Controller) Registry() *fields.Registry { return c.registry }

func (c *Controller) Photos() *photos.Manager { return c.photos }

// Snapshot returns a copy of the current state for rendering.
func (c *Controller) Snapshot() State { return c.state.clone() }

func (c *Controller) Value(field string) string { return c.state.Values[field] }

func (c *Controller) Error(field string) string { return c.state.Errors[field] }

func (c *Controller) Touched(field string) bool { return c.state.Touched[field] }

// Count returns the character count of a field's value, as shown by counters.
func (c *Controller) Count(field string) int {
	return utf8.RuneCountInString(c.state.Values[field])
}

func (c *Controller) scalar(field string) (*fields.Definition, error) {
	def, err := c.registry.Lookup(field)
	if err != nil {
		return nil, err
	}
	if !def.Scalar() {
		return nil, fmt.Errorf("field %q holds files, not a value", field)
	}
	return def, nil
}

// SetValue stores a new value for a scalar field. Numeric fields keep only
// their digits. The field is re-validated right away only when it currently
// shows an error and the new value is non-empty; otherwise validation waits
// for MarkTouched.
func (c *Controller) SetValue(field, value string) error {
	def, err := c.scalar(field)
	if err != nil {
		return err
	}
	value = def.Normalize(value)
	c.state.Values[field] = value

	if c.state.Errors[field] != "" && value != "" {
		c.apply(def)
	}
	return nil
}

// MarkTouched records that the field lost focus and validates it.
func (c *Controller) MarkTouched(field string) error {
	def, err := c.registry.Lookup(field)
	if err != nil {
		return err
	}
	c.state.Touched[field] = true
	c.apply(def)
	return nil
}

// ToggleChoice selects value in a choice group, or clears the field when
// value is already selected. The field is validated afterwards.
func (c *Controller) ToggleChoice(field, value string) error {
	def, err := c.scalar(field)
	if err != nil {
		return err
	}
	if def.Kind != fields.KindChoice {
		return fmt.Errorf("field %q is not a choice group", field)
	}

	if c.state.Values[field] == value {
		c.state.Values[field] = ""
	} else {
		c.state.Values[field] = value
	}
	c.apply(def)
	return nil
}

// ValidateField evaluates the field's rule against its current value, records
// the outcome and returns the message ("" when valid).
func (c *Controller) ValidateField(field string) (string, error) {
	def, err := c.registry.Lookup(field)
	if err != nil {
		return "", err
	}
	return c.apply(def), nil
}

func (c *Controller) apply(def *fields.Definition) string {
	var msg string
	if def.Scalar() {
		msg = def.Validate(c.state.Values[def.Name])
	} else {
		msg = def.ValidateCount(c.photos.Len())
	}

	if msg == "" {
		delete(c.state.Errors, def.Name)
	} else {
		c.state.Errors[def.Name] = msg
	}
	return msg
}

// ValidateAll validates and touches every field and reports whether the form
// is free of errors.
func (c *Controller) ValidateAll() bool {
	for _, def := range c.registry.Fields() {
		c.state.Touched[def.Name] = true
		c.apply(def)
	}
	return len(c.state.Errors) == 0
}

// CanSubmit reports whether every required field has a value and no field
// currently shows an error. It does not validate.
func (c *Controller) CanSubmit() bool {
	if len(c.state.Errors) > 0 {
		return false
	}
	for _, def := range c.registry.Required() {
		if def.Scalar() && c.state.Values[def.Name] == "" {
			return false
		}
		if !def.Scalar() && c.photos.Len() == 0 {
			return false
		}
	}
	return true
}

// AddPhotos hands a file selection to the photo manager. The file-list field
// is re-validated when the selection changed the list.
func (c *Controller) AddPhotos(ctx context.Context, files []photos.File) error {
	before := c.photos.Len()
	err := c.photos.AddFiles(ctx, files)
	if c.photos.Len() != before {
		c.validatePhotos()
	}
	return err
}

// RemovePhoto drops the photo at index and re-validates the file-list field.
// The entry is gone even when releasing its preview fails.
func (c *Controller) RemovePhoto(ctx context.Context, index int) error {
	before := c.photos.Len()
	err := c.photos.Remove(ctx, index)
	if c.photos.Len() != before {
		c.validatePhotos()
	}
	return err
}

func (c *Controller) validatePhotos() {
	if def := c.registry.FileField(); def != nil {
		c.apply(def)
	}
}

// Submit validates every field. When the form is valid the values and photos
// are handed to the Submitter and the form is reset; otherwise the errors
// stay visible and nothing is sent. A Submitter failure leaves the form
// untouched so the user can retry.
func (c *Controller) Submit(ctx context.Context) (Result, error) {
	if !c.ValidateAll() {
		c.logger.Debug("submit blocked", "errors", len(c.state.Errors))
		return Result{}, nil
	}

	sub := Submission{
		Fields: maps.Clone(c.state.Values),
		Photos: c.photos.Entries(),
	}
	ad, err := c.submitter.SubmitAd(ctx, sub)
	if err != nil {
		return Result{}, fmt.Errorf("failed to submit ad: %w", err)
	}

	if err := c.Reset(ctx); err != nil {
		c.logger.Error("failed to reset form after submit", "ad_id", ad.ID, "error", err)
	}
	return Result{Accepted: true, Ad: ad}, nil
}

// Reset restores every field to its default and releases all photos.
func (c *Controller) Reset(ctx context.Context) error {
	c.state = c.defaults()
	if err := c.photos.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset photos: %w", err)
	}
	return nil
}
