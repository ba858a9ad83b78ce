package web_test

import (
	"bytes"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/adpost/internal/db"
	"github.com/vbonduro/adpost/internal/draft"
	"github.com/vbonduro/adpost/internal/fields"
	"github.com/vbonduro/adpost/internal/form"
	"github.com/vbonduro/adpost/internal/photos"
	"github.com/vbonduro/adpost/internal/photostore/local"
	"github.com/vbonduro/adpost/internal/service"
	"github.com/vbonduro/adpost/internal/store"
	"github.com/vbonduro/adpost/internal/web"
	"github.com/vbonduro/adpost/internal/web/templates"
)

// minimalJPEG is 512 bytes with the JPEG magic bytes header followed by zeros.
// http.DetectContentType identifies JPEG from the leading 0xFF 0xD8 bytes.
var minimalJPEG = func() []byte {
	b := make([]byte, 512)
	b[0] = 0xFF
	b[1] = 0xD8
	b[2] = 0xFF
	b[3] = 0xE0
	return b
}()

var minimalGIF = []byte("GIF89a\x01\x00\x01\x00")

type testEnv struct {
	srv    *httptest.Server
	client *http.Client
	drafts *draft.Store
}

// newTestEnv sets up a real web.Server backed by in-memory SQLite and
// temporary photo directories. The client keeps cookies, so every request
// belongs to the same draft.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.Default()

	database, err := db.OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	previews, err := local.New(t.TempDir())
	require.NoError(t, err)
	listingPhotos, err := local.New(t.TempDir())
	require.NoError(t, err)

	reg, err := fields.PropertyAd()
	require.NoError(t, err)

	listings := service.NewListingService(
		store.NewAdStore(database),
		store.NewAdPhotoStore(database),
		previews,
		listingPhotos,
		logger,
	)
	drafts, err := draft.NewStore(16, func(id string) *form.Controller {
		return form.NewController(reg, photos.NewManager(previews, "draft_"+id, logger), listings, logger)
	}, logger)
	require.NoError(t, err)
	t.Cleanup(drafts.Close)

	srv := httptest.NewServer(web.NewServer(drafts, listings, reg, previews, templates.FS, logger))
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &testEnv{srv: srv, client: &http.Client{Jar: jar}, drafts: drafts}
}

func (e *testEnv) do(t *testing.T, method, path, contentType string, body io.Reader, htmx bool) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, body)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if htmx {
		req.Header.Set("HX-Request", "true")
	}
	resp, err := e.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	return e.do(t, http.MethodGet, path, "", nil, false)
}

// hxPost sends a form-encoded htmx request.
func (e *testEnv) hxPost(t *testing.T, path string, values url.Values) *http.Response {
	t.Helper()
	return e.do(t, http.MethodPost, path, "application/x-www-form-urlencoded", strings.NewReader(values.Encode()), true)
}

func (e *testEnv) upload(t *testing.T, files map[string][]byte) *http.Response {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for name, data := range files {
		fw, err := w.CreateFormFile("photos", name)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return e.do(t, http.MethodPost, "/post/photos", w.FormDataContentType(), body, true)
}

// startDraft loads the form, which creates the visitor's draft.
func (e *testEnv) startDraft(t *testing.T) *goquery.Document {
	t.Helper()
	resp := e.get(t, "/post")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return parse(t, resp)
}

func parse(t *testing.T, resp *http.Response) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	require.NoError(t, err)
	return doc
}

func text(doc *goquery.Document, selector string) string {
	return strings.TrimSpace(doc.Find(selector).Text())
}

func validAd() url.Values {
	return url.Values{
		"propertyType":     {"Farm House"},
		"superBuiltUpArea": {"1200"},
		"carpetArea":       {"1000"},
		"facing":           {"north-east"},
		"adTitle":          {"Sunny farm house near the lake"},
		"description":      {"Three bedrooms, large garden and a well."},
		"price":            {"2500000"},
		"state":            {"karnataka"},
		"mobileNumber":     {"9876543210"},
	}
}

func TestIntegration_PostPage(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/post")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, 1, env.drafts.Len())

	doc := parse(t, resp)
	assert.Equal(t, "POST YOUR AD", text(doc, "h1"))
	assert.Equal(t, 4, doc.Find("#field-propertyType button").Length())
	assert.Equal(t, 0, doc.Find(`#field-propertyType button[aria-pressed="true"]`).Length())
	assert.Equal(t, 6, doc.Find("#field-state option").Length())
	assert.Equal(t, "0 / 70", text(doc, "#feedback-adTitle .counter"))
	assert.Equal(t, photos.MaxPhotos, doc.Find("#field-photos label.slot").Length())
	assert.Equal(t, "This field is mandatory", text(doc, "#field-photos .status"))
	assert.Equal(t, 0, doc.Find(".field.invalid").Length(), "no errors before interaction")

	_, disabled := doc.Find("#submit button").Attr("disabled")
	assert.True(t, disabled)

	// Reloading keeps the same draft.
	env.startDraft(t)
	assert.Equal(t, 1, env.drafts.Len())
}

func TestIntegration_RootRedirectsToPost(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/post", resp.Request.URL.Path)
}

func TestIntegration_FieldValidationOnBlur(t *testing.T) {
	env := newTestEnv(t)
	env.startDraft(t)

	resp := env.hxPost(t, "/post/fields/adTitle", url.Values{"adTitle": {"Short"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	doc := parse(t, resp)
	assert.Empty(t, text(doc, "#feedback-adTitle .error"), "typing alone does not validate")
	assert.Equal(t, "5 / 70", text(doc, "#feedback-adTitle .counter"))
	assert.Equal(t, "true", doc.Find("#submit").AttrOr("hx-swap-oob", ""))

	resp = env.hxPost(t, "/post/fields/adTitle/blur", url.Values{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	doc = parse(t, resp)
	assert.True(t, doc.Find("#field-adTitle").HasClass("invalid"))
	assert.Equal(t,
		"A minimum length of 10 characters is required. Please edit the field.",
		text(doc, "#field-adTitle .error"))

	// A field showing an error is re-checked on every change.
	resp = env.hxPost(t, "/post/fields/adTitle", url.Values{"adTitle": {"Short but long enough"}})
	doc = parse(t, resp)
	assert.Empty(t, text(doc, "#feedback-adTitle .error"))
	assert.Equal(t, "21 / 70", text(doc, "#feedback-adTitle .counter"))
}

func TestIntegration_NumericFieldKeepsDigits(t *testing.T) {
	env := newTestEnv(t)
	env.startDraft(t)

	resp := env.hxPost(t, "/post/fields/price/blur", url.Values{"price": {"12a3"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	doc := parse(t, resp)
	assert.Equal(t, "123", doc.Find("#input-price").AttrOr("value", ""))
	assert.Empty(t, text(doc, "#field-price .error"))

	doc = env.startDraft(t)
	assert.Equal(t, "123", doc.Find("#input-price").AttrOr("value", ""))
}

func TestIntegration_ToggleChoice(t *testing.T) {
	env := newTestEnv(t)
	env.startDraft(t)
	path := "/post/choices/propertyType?value=" + url.QueryEscape("House & Villa")

	resp := env.hxPost(t, path, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	doc := parse(t, resp)
	assert.Equal(t, "House & Villa", text(doc, `#field-propertyType button[aria-pressed="true"]`))
	assert.Equal(t, "House & Villa", doc.Find(`#field-propertyType input[type="hidden"]`).AttrOr("value", ""))

	resp = env.hxPost(t, path, nil)
	doc = parse(t, resp)
	assert.Equal(t, 0, doc.Find(`#field-propertyType button[aria-pressed="true"]`).Length())
	assert.Equal(t, "Property type is mandatory. Please select one option.", text(doc, "#field-propertyType .error"))
}

func TestIntegration_FieldErrors(t *testing.T) {
	env := newTestEnv(t)
	env.startDraft(t)

	resp := env.hxPost(t, "/post/fields/nope", url.Values{"nope": {"x"}})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.hxPost(t, "/post/choices/adTitle?value=x", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestIntegration_ExpiredDraftRefreshes(t *testing.T) {
	env := newTestEnv(t)

	resp := env.hxPost(t, "/post/fields/adTitle", url.Values{"adTitle": {"x"}})
	assert.Equal(t, http.StatusGone, resp.StatusCode)
	assert.Equal(t, "true", resp.Header.Get("HX-Refresh"))

	resp = env.upload(t, map[string][]byte{"a.jpg": minimalJPEG})
	assert.Equal(t, http.StatusGone, resp.StatusCode)
}

func TestIntegration_UploadAndRemovePhotos(t *testing.T) {
	env := newTestEnv(t)
	env.startDraft(t)

	resp := env.upload(t, map[string][]byte{"house.jpg": minimalJPEG, "anim.gif": minimalGIF})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	doc := parse(t, resp)
	assert.Equal(t, 1, doc.Find("#field-photos .slot.photo").Length())
	assert.Equal(t, "1 of 20 photos added", text(doc, "#field-photos .status"))
	assert.Equal(t, photos.MaxPhotos-1, doc.Find("#field-photos label.slot").Length())
	_, disabled := doc.Find("#submit button").Attr("disabled")
	assert.True(t, disabled, "other required fields are still empty")

	src, ok := doc.Find("#field-photos img").Attr("src")
	require.True(t, ok)
	preview := env.get(t, src)
	require.Equal(t, http.StatusOK, preview.StatusCode)
	assert.Equal(t, "image/jpeg", preview.Header.Get("Content-Type"))
	got, err := io.ReadAll(preview.Body)
	require.NoError(t, err)
	assert.Equal(t, minimalJPEG, got)

	stale := env.get(t, "/post/photos/0/preview?v=stale")
	assert.Equal(t, http.StatusNotFound, stale.StatusCode)

	resp = env.upload(t, map[string][]byte{"anim.gif": minimalGIF})
	doc = parse(t, resp)
	assert.Equal(t, 1, doc.Find("#field-photos .slot.photo").Length())
	assert.Equal(t, photos.MsgUnsupportedType, text(doc, "#field-photos .status"))

	resp = env.do(t, http.MethodDelete, "/post/photos/5", "", nil, true)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, "/post/photos/0", "", nil, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	doc = parse(t, resp)
	assert.Equal(t, 0, doc.Find("#field-photos .slot.photo").Length())
	assert.Equal(t, "At least one photo is required. Please upload a photo.", text(doc, "#field-photos .error"))

	gone := env.get(t, src)
	assert.Equal(t, http.StatusNotFound, gone.StatusCode)
}

func TestIntegration_SubmitInvalid(t *testing.T) {
	env := newTestEnv(t)
	env.startDraft(t)

	resp := env.hxPost(t, "/post/submit", url.Values{"adTitle": {"Too short"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("HX-Redirect"))

	doc := parse(t, resp)
	assert.Equal(t, 1, doc.Find("form#post-form").Length())
	assert.Equal(t, "Too short", doc.Find("#input-adTitle").AttrOr("value", ""))
	assert.Equal(t, "Price is mandatory. Please complete the required field.", text(doc, "#field-price .error"))
	assert.Equal(t, "At least one photo is required. Please upload a photo.", text(doc, "#field-photos .error"))
	assert.Empty(t, text(doc, "#field-bhk .error"), "optional fields stay clean")
	assert.Equal(t, 9, doc.Find(".field.invalid").Length())
}

func TestIntegration_SubmitPublishesAd(t *testing.T) {
	env := newTestEnv(t)
	env.startDraft(t)

	resp := env.upload(t, map[string][]byte{"house.jpg": minimalJPEG})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.hxPost(t, "/post/submit", validAd())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	target := resp.Header.Get("HX-Redirect")
	require.Equal(t, "/ads/1?posted=1", target)

	resp = env.get(t, target)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	doc := parse(t, resp)
	assert.Equal(t, "YOUR AD IS LIVE", text(doc, "h1"))
	assert.Equal(t, "Sunny farm house near the lake", text(doc, ".listing .title"))
	assert.Contains(t, text(doc, ".listing .price"), "2500000")

	details := map[string]string{}
	doc.Find(".listing dt").Each(func(_ int, s *goquery.Selection) {
		details[s.Text()] = s.Next().Text()
	})
	assert.Equal(t, "Farm House", details["Type"])
	assert.Equal(t, "North East", details["Facing"])
	assert.Equal(t, "Karnataka", details["State"])
	assert.Equal(t, "+91 9876543210", details["Mobile Phone Number"])
	assert.NotContains(t, details, "BHK", "unset attributes are not listed")

	src, ok := doc.Find(".listing img").Attr("src")
	require.True(t, ok)
	assert.Equal(t, "/ads/1/photos/0", src)
	photo := env.get(t, src)
	require.Equal(t, http.StatusOK, photo.StatusCode)
	got, err := io.ReadAll(photo.Body)
	require.NoError(t, err)
	assert.Equal(t, minimalJPEG, got)

	// The draft starts over after publishing.
	doc = env.startDraft(t)
	assert.Empty(t, doc.Find("#input-adTitle").AttrOr("value", "x"))
	assert.Equal(t, 0, doc.Find("#field-photos .slot.photo").Length())
}

func TestIntegration_SubmitWithoutHTMX(t *testing.T) {
	env := newTestEnv(t)
	env.startDraft(t)
	env.upload(t, map[string][]byte{"house.jpg": minimalJPEG})

	resp := env.do(t, http.MethodPost, "/post/submit", "application/x-www-form-urlencoded",
		strings.NewReader(validAd().Encode()), false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/ads/1", resp.Request.URL.Path)
	assert.Equal(t, "YOUR AD IS LIVE", text(parse(t, resp), "h1"))
}

func TestIntegration_ListAds(t *testing.T) {
	env := newTestEnv(t)

	doc := parse(t, env.get(t, "/ads"))
	assert.Contains(t, text(doc, ".card"), "No ads yet.")

	env.startDraft(t)
	env.upload(t, map[string][]byte{"house.jpg": minimalJPEG})
	resp := env.hxPost(t, "/post/submit", validAd())
	require.NotEmpty(t, resp.Header.Get("HX-Redirect"))

	doc = parse(t, env.get(t, "/ads"))
	assert.Equal(t, 1, doc.Find(".ad-card").Length())
	assert.Equal(t, "/ads/1", doc.Find(".ad-card a").AttrOr("href", ""))

	doc = parse(t, env.get(t, "/ads/1"))
	assert.Equal(t, "AD DETAILS", text(doc, "h1"))
}

func TestIntegration_AdNotFound(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusNotFound, env.get(t, "/ads/99").StatusCode)
	assert.Equal(t, http.StatusBadRequest, env.get(t, "/ads/abc").StatusCode)
	assert.Equal(t, http.StatusNotFound, env.get(t, "/ads/99/photos/0").StatusCode)
}

func TestIntegration_Discard(t *testing.T) {
	env := newTestEnv(t)
	env.startDraft(t)
	env.upload(t, map[string][]byte{"house.jpg": minimalJPEG})

	resp := env.hxPost(t, "/post/discard", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/ads", resp.Header.Get("HX-Redirect"))
	assert.Zero(t, env.drafts.Len())

	resp = env.hxPost(t, "/post/fields/adTitle", url.Values{"adTitle": {"x"}})
	assert.Equal(t, http.StatusGone, resp.StatusCode)
}
