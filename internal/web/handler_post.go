package web

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/vbonduro/adpost/internal/draft"
	"github.com/vbonduro/adpost/internal/fields"
	"github.com/vbonduro/adpost/internal/form"
)

const draftCookie = "adpost_draft"

const msgSubmitFailed = "We could not publish your ad. Please try again."

var (
	postPageFiles = []string{
		"base.html", "pages/post.html",
		"partials/form.html", "partials/field.html", "partials/photos.html", "partials/submit.html",
	}
	partialFiles = []string{
		"partials/responses.html",
		"partials/form.html", "partials/field.html", "partials/photos.html", "partials/submit.html",
	}
)

func (s *Server) draftFromRequest(r *http.Request) (*draft.Draft, error) {
	c, err := r.Cookie(draftCookie)
	if err != nil {
		return nil, draft.ErrNotFound
	}
	return s.drafts.Get(c.Value)
}

func setDraftCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     draftCookie,
		Value:    id,
		Path:     "/post",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearDraftCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     draftCookie,
		Value:    "",
		Path:     "/post",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// requireDraft returns the visitor's draft for a partial update. When the
// draft has expired it asks htmx to reload the page, which starts a new one.
func (s *Server) requireDraft(w http.ResponseWriter, r *http.Request) (*draft.Draft, bool) {
	d, err := s.draftFromRequest(r)
	if err != nil {
		expireDraft(w)
		return nil, false
	}
	return d, true
}

// expireDraft asks htmx to reload the page, which starts a new draft.
func expireDraft(w http.ResponseWriter) {
	w.Header().Set("HX-Refresh", "true")
	http.Error(w, "draft expired", http.StatusGone)
}

// fieldErrorStatus maps controller errors on a named field to a status code.
func fieldErrorStatus(err error) int {
	if errors.Is(err, fields.ErrUnknownField) {
		return http.StatusNotFound
	}
	return http.StatusBadRequest
}

func (s *Server) handlePostPage(w http.ResponseWriter, r *http.Request) {
	var view formView
	render := func(c *form.Controller) error {
		view = newFormView(c)
		return nil
	}

	d, err := s.draftFromRequest(r)
	if err == nil {
		err = d.Do(render)
	}
	if err != nil {
		// Missing, or evicted after lookup.
		d = s.drafts.Create()
		setDraftCookie(w, d.ID)
		if err := d.Do(render); err != nil {
			http.Error(w, "failed to start draft", http.StatusServiceUnavailable)
			s.logger.Error("new draft released before first render", "draft_id", d.ID)
			return
		}
	}

	if err := s.renderPage(w, pageView{Title: "Post your ad", ActiveNav: "post", Data: view}, postPageFiles...); err != nil {
		s.logger.Error("render page failed", "error", err)
	}
}

// handleFieldInput stores a keystroke-level value change and returns the
// field's feedback line.
func (s *Server) handleFieldInput(w http.ResponseWriter, r *http.Request) {
	d, ok := s.requireDraft(w, r)
	if !ok {
		return
	}
	name := r.PathValue("name")
	value := r.FormValue(name)

	var resp fieldResponse
	err := d.Do(func(c *form.Controller) error {
		if err := c.SetValue(name, value); err != nil {
			return err
		}
		def, err := c.Registry().Lookup(name)
		if err != nil {
			return err
		}
		resp = fieldResponse{Field: newFieldView(c, def), Submit: newSubmitView(c, true)}
		return nil
	})
	if errors.Is(err, draft.ErrNotFound) {
		expireDraft(w)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), fieldErrorStatus(err))
		return
	}

	if err := s.renderPartial(w, "feedback_response", resp, partialFiles...); err != nil {
		s.logger.Error("render partial failed", "error", err)
	}
}

// handleFieldBlur stores the posted value, if any, marks the field touched
// and returns the whole field.
func (s *Server) handleFieldBlur(w http.ResponseWriter, r *http.Request) {
	d, ok := s.requireDraft(w, r)
	if !ok {
		return
	}
	name := r.PathValue("name")
	if err := r.ParseForm(); err != nil {
		http.Error(w, "failed to parse form", http.StatusBadRequest)
		return
	}

	var resp fieldResponse
	err := d.Do(func(c *form.Controller) error {
		if values, posted := r.PostForm[name]; posted {
			if err := c.SetValue(name, values[0]); err != nil {
				return err
			}
		}
		if err := c.MarkTouched(name); err != nil {
			return err
		}
		def, err := c.Registry().Lookup(name)
		if err != nil {
			return err
		}
		resp = fieldResponse{Field: newFieldView(c, def), Submit: newSubmitView(c, true)}
		return nil
	})
	if errors.Is(err, draft.ErrNotFound) {
		expireDraft(w)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), fieldErrorStatus(err))
		return
	}

	if err := s.renderPartial(w, "field_response", resp, partialFiles...); err != nil {
		s.logger.Error("render partial failed", "error", err)
	}
}

func (s *Server) handleToggleChoice(w http.ResponseWriter, r *http.Request) {
	d, ok := s.requireDraft(w, r)
	if !ok {
		return
	}
	name := r.PathValue("name")
	value := r.URL.Query().Get("value")

	var resp fieldResponse
	err := d.Do(func(c *form.Controller) error {
		if err := c.ToggleChoice(name, value); err != nil {
			return err
		}
		def, err := c.Registry().Lookup(name)
		if err != nil {
			return err
		}
		resp = fieldResponse{Field: newFieldView(c, def), Submit: newSubmitView(c, true)}
		return nil
	})
	if errors.Is(err, draft.ErrNotFound) {
		expireDraft(w)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), fieldErrorStatus(err))
		return
	}

	if err := s.renderPartial(w, "field_response", resp, partialFiles...); err != nil {
		s.logger.Error("render partial failed", "error", err)
	}
}

// handleSubmit applies any posted values, then validates and submits the
// draft. An invalid form is rendered again with every error visible.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	d, ok := s.requireDraft(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "failed to parse form", http.StatusBadRequest)
		return
	}

	var (
		res  form.Result
		view formView
	)
	err := d.Do(func(c *form.Controller) error {
		for _, def := range c.Registry().Fields() {
			if values, posted := r.PostForm[def.Name]; posted && def.Scalar() {
				_ = c.SetValue(def.Name, values[0])
			}
		}

		var err error
		res, err = c.Submit(r.Context())
		if err != nil {
			s.logger.Error("submit ad failed", "draft_id", d.ID, "error", err)
		}
		if !res.Accepted {
			view = newFormView(c)
			if err != nil {
				view.Banner = msgSubmitFailed
			}
		}
		return nil
	})
	if errors.Is(err, draft.ErrNotFound) {
		expireDraft(w)
		return
	}

	if res.Accepted {
		s.logger.Info("ad published", "draft_id", d.ID, "ad_id", res.Ad.ID)
		target := fmt.Sprintf("/ads/%d?posted=1", res.Ad.ID)
		if isHTMX(r) {
			w.Header().Set("HX-Redirect", target)
			w.WriteHeader(http.StatusOK)
			return
		}
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}

	if isHTMX(r) {
		if err := s.renderPartial(w, "form", view, partialFiles...); err != nil {
			s.logger.Error("render partial failed", "error", err)
		}
		return
	}
	if err := s.renderPage(w, pageView{Title: "Post your ad", ActiveNav: "post", Data: view}, postPageFiles...); err != nil {
		s.logger.Error("render page failed", "error", err)
	}
}

// handleDiscard drops the visitor's draft when they leave the form.
func (s *Server) handleDiscard(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(draftCookie); err == nil {
		s.drafts.Discard(c.Value)
	}
	clearDraftCookie(w)

	if isHTMX(r) {
		w.Header().Set("HX-Redirect", "/ads")
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, "/ads", http.StatusSeeOther)
}
