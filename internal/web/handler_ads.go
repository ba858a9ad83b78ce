package web

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/dustin/go-humanize"

	"github.com/vbonduro/adpost/internal/fields"
	"github.com/vbonduro/adpost/internal/service"
)

const recentAdsLimit = 20

// detailsSkipped are shown in their own places on the ad page.
var detailsSkipped = map[string]bool{
	"adTitle":     true,
	"description": true,
	"price":       true,
}

type detailRow struct {
	Label string
	Value string
}

type adPageView struct {
	*service.Listing
	Details []detailRow
	Posted  string
	Fresh   bool
}

// listingDetails lists the ad's non-empty attributes in form order, showing
// option labels rather than stored values.
func listingDetails(reg *fields.Registry, l *service.Listing) []detailRow {
	values := l.Values()
	var rows []detailRow
	for _, def := range reg.Fields() {
		if !def.Scalar() || detailsSkipped[def.Name] {
			continue
		}
		v := values[def.Name]
		if v == "" {
			continue
		}
		for _, o := range def.Options {
			if o.Value == v {
				v = o.Label
				break
			}
		}
		if def.Prefix != "" {
			v = def.Prefix + " " + v
		}
		rows = append(rows, detailRow{Label: def.Label, Value: v})
	}
	return rows
}

func (s *Server) handleListAds(w http.ResponseWriter, r *http.Request) {
	listings, err := s.listings.RecentListings(r.Context(), recentAdsLimit)
	if err != nil {
		http.Error(w, "failed to list ads", http.StatusInternalServerError)
		s.logger.Error("list ads failed", "error", err)
		return
	}

	if err := s.renderPage(w,
		pageView{Title: "Recent ads", ActiveNav: "ads", Data: listings},
		"base.html", "pages/ads.html",
	); err != nil {
		s.logger.Error("render page failed", "error", err)
	}
}

func (s *Server) handleGetAd(w http.ResponseWriter, r *http.Request) {
	adID, err := parseID(r)
	if err != nil {
		http.Error(w, "invalid ad id", http.StatusBadRequest)
		return
	}

	listing, err := s.listings.GetListing(r.Context(), adID)
	if errors.Is(err, service.ErrListingNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, "failed to get ad", http.StatusInternalServerError)
		s.logger.Error("get ad failed", "ad_id", adID, "error", err)
		return
	}

	view := adPageView{
		Listing: listing,
		Details: listingDetails(s.registry, listing),
		Posted:  humanize.Time(listing.CreatedAt),
		Fresh:   r.URL.Query().Get("posted") == "1",
	}
	if err := s.renderPage(w,
		pageView{Title: listing.Title, ActiveNav: "ads", Data: view},
		"base.html", "pages/ad.html",
	); err != nil {
		s.logger.Error("render page failed", "error", err)
	}
}

func (s *Server) handleGetAdPhoto(w http.ResponseWriter, r *http.Request) {
	adID, err := parseID(r)
	if err != nil {
		http.Error(w, "invalid ad id", http.StatusBadRequest)
		return
	}
	position, err := strconv.Atoi(r.PathValue("position"))
	if err != nil {
		http.Error(w, "invalid photo position", http.StatusBadRequest)
		return
	}

	reader, mimeType, err := s.listings.OpenPhoto(r.Context(), adID, position)
	if errors.Is(err, service.ErrListingNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, "failed to open photo", http.StatusInternalServerError)
		s.logger.Error("open ad photo failed", "ad_id", adID, "position", position, "error", err)
		return
	}
	defer closeWithLog(reader, "photo reader", s.logger)

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	if _, err := io.Copy(w, reader); err != nil {
		s.logger.Error("write ad photo failed", "ad_id", adID, "position", position, "error", err)
	}
}

// parseID extracts the {id} path variable and returns it as int64.
func parseID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}
