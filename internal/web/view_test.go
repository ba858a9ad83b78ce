package web

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/adpost/internal/domain"
	"github.com/vbonduro/adpost/internal/fields"
	"github.com/vbonduro/adpost/internal/form"
	"github.com/vbonduro/adpost/internal/photos"
)

type countingPreviews struct{ n int }

func (p *countingPreviews) Save(_ context.Context, prefix, _ string, _ io.Reader) (string, error) {
	p.n++
	return fmt.Sprintf("%s/%d.jpg", prefix, p.n), nil
}

func (p *countingPreviews) Delete(context.Context, string) error { return nil }

type unusedSubmitter struct{}

func (unusedSubmitter) SubmitAd(context.Context, form.Submission) (*domain.Ad, error) {
	return nil, fmt.Errorf("not expected")
}

func newViewController(t *testing.T) *form.Controller {
	t.Helper()
	reg, err := fields.PropertyAd()
	require.NoError(t, err)
	pm := photos.NewManager(&countingPreviews{}, "draft_view", slog.Default())
	return form.NewController(reg, pm, unusedSubmitter{}, slog.Default())
}

func jpegs(n int) []photos.File {
	files := make([]photos.File, n)
	for i := range files {
		files[i] = photos.File{Name: fmt.Sprintf("p%d.jpg", i), Size: 10, MIMEType: "image/jpeg", Data: []byte("x")}
	}
	return files
}

func TestPhotosViewStatus(t *testing.T) {
	ctx := context.Background()
	c := newViewController(t)
	def := c.Registry().FileField()

	v := newPhotosView(c, def)
	assert.Equal(t, msgPhotosMandatory, v.Status)
	assert.True(t, v.StatusIsError)
	assert.Len(t, v.Slots, photos.MaxPhotos)

	require.NoError(t, c.AddPhotos(ctx, jpegs(3)))
	v = newPhotosView(c, def)
	assert.Equal(t, "3 of 20 photos added", v.Status)
	assert.False(t, v.StatusIsError)
	assert.Len(t, v.Entries, 3)
	assert.Len(t, v.Slots, photos.MaxPhotos-3)
	assert.Equal(t, []int{3, 4}, v.Slots[:2])

	require.NoError(t, c.AddPhotos(ctx, []photos.File{{Name: "a.gif", Size: 10, MIMEType: "image/gif"}}))
	v = newPhotosView(c, def)
	assert.Equal(t, photos.MsgUnsupportedType, v.Status)
	assert.True(t, v.StatusIsError)
	assert.Len(t, v.Entries, 3)
}

func TestPhotosViewFull(t *testing.T) {
	c := newViewController(t)
	require.NoError(t, c.AddPhotos(context.Background(), jpegs(photos.MaxPhotos)))

	v := newPhotosView(c, c.Registry().FileField())
	assert.Empty(t, v.Slots)
	assert.Equal(t, "20 of 20 photos added", v.Status)
}

func TestPreviewVersion(t *testing.T) {
	assert.Equal(t, "7f3a", previewVersion("draft_x/7f3a.jpg"))
	assert.Equal(t, "7f3a", previewVersion("7f3a"))
}

func TestFieldViewKinds(t *testing.T) {
	c := newViewController(t)
	reg := c.Registry()

	lookup := func(name string) fieldView {
		def, err := reg.Lookup(name)
		require.NoError(t, err)
		return newFieldView(c, def)
	}

	assert.True(t, lookup("propertyType").IsChoice())
	assert.True(t, lookup("state").IsSelect())
	assert.Equal(t, "numeric", lookup("price").InputMode())
	assert.Equal(t, "text", lookup("adTitle").InputMode())
	assert.True(t, lookup("description").Multiline())
	assert.False(t, lookup("adTitle").Multiline())
}

func TestFormViewSections(t *testing.T) {
	c := newViewController(t)

	v := newFormView(c)
	require.Len(t, v.Sections, len(c.Registry().Sections()))
	assert.False(t, v.Submit.Enabled)
	assert.False(t, v.Submit.OOB)

	var photoSections int
	for _, s := range v.Sections {
		if s.Photos != nil {
			photoSections++
		}
		for _, f := range s.Fields {
			assert.True(t, f.Scalar(), f.Name)
		}
	}
	assert.Equal(t, 1, photoSections)
}
