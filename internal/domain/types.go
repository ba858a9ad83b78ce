package domain

import "time"

// Ad is a submitted property listing. Numeric attributes are kept as the
// digit strings the form produced; optional attributes are "" when unset.
type Ad struct {
	ID               int64
	PropertyType     string
	BHK              string
	Bathrooms        string
	Furnishing       string
	ProjectStatus    string
	ListedBy         string
	SuperBuiltUpArea string
	CarpetArea       string
	Maintenance      string
	TotalFloors      string
	FloorNo          string
	CarParking       string
	Facing           string
	ProjectName      string
	Title            string
	Description      string
	Price            string
	State            string
	MobileNumber     string
	CreatedAt        time.Time
}

// AdPhoto is a listing image. Position 0 is the cover.
type AdPhoto struct {
	ID         int64
	AdID       int64
	Position   int
	StorageKey string
	MimeType   string
	Size       int64
	CreatedAt  time.Time
}

// NewAd builds an ad from form values keyed by field name. Missing keys
// leave the attribute empty.
func NewAd(values map[string]string) *Ad {
	return &Ad{
		PropertyType:     values["propertyType"],
		BHK:              values["bhk"],
		Bathrooms:        values["bathrooms"],
		Furnishing:       values["furnishing"],
		ProjectStatus:    values["projectStatus"],
		ListedBy:         values["listedBy"],
		SuperBuiltUpArea: values["superBuiltUpArea"],
		CarpetArea:       values["carpetArea"],
		Maintenance:      values["maintenance"],
		TotalFloors:      values["totalFloors"],
		FloorNo:          values["floorNo"],
		CarParking:       values["carParking"],
		Facing:           values["facing"],
		ProjectName:      values["projectName"],
		Title:            values["adTitle"],
		Description:      values["description"],
		Price:            values["price"],
		State:            values["state"],
		MobileNumber:     values["mobileNumber"],
	}
}

// Values is the inverse of NewAd.
func (a *Ad) Values() map[string]string {
	return map[string]string{
		"propertyType":     a.PropertyType,
		"bhk":              a.BHK,
		"bathrooms":        a.Bathrooms,
		"furnishing":       a.Furnishing,
		"projectStatus":    a.ProjectStatus,
		"listedBy":         a.ListedBy,
		"superBuiltUpArea": a.SuperBuiltUpArea,
		"carpetArea":       a.CarpetArea,
		"maintenance":      a.Maintenance,
		"totalFloors":      a.TotalFloors,
		"floorNo":          a.FloorNo,
		"carParking":       a.CarParking,
		"facing":           a.Facing,
		"projectName":      a.ProjectName,
		"adTitle":          a.Title,
		"description":      a.Description,
		"price":            a.Price,
		"state":            a.State,
		"mobileNumber":     a.MobileNumber,
	}
}
