package domain

import "math"

// ListingRecord is one row of the cleaned listings table.
// Categorical fields are kept verbatim; "" is a category of its own.
type ListingRecord struct {
	Country         string  `json:"country"`
	PropertyType    string  `json:"property_type"`
	RoomType        string  `json:"room_type"`
	Price           float64 `json:"price"`
	Availability365 int     `json:"availability_365"`
	HostName        string  `json:"host_name"`
	Name            string  `json:"name"`
}

// Column names a field of ListingRecord.
type Column string

const (
	ColCountry         Column = "country"
	ColPropertyType    Column = "property_type"
	ColRoomType        Column = "room_type"
	ColHostName        Column = "host_name"
	ColName            Column = "name"
	ColPrice           Column = "price"
	ColAvailability365 Column = "availability_365"
)

// CategoricalColumns and NumericColumns list columns in table order.
var (
	CategoricalColumns = []Column{ColCountry, ColPropertyType, ColRoomType, ColHostName, ColName}
	NumericColumns     = []Column{ColPrice, ColAvailability365}
)

func (c Column) IsCategorical() bool {
	for _, x := range CategoricalColumns {
		if x == c {
			return true
		}
	}
	return false
}

func (c Column) IsNumeric() bool {
	for _, x := range NumericColumns {
		if x == c {
			return true
		}
	}
	return false
}

// Category returns the value of a categorical column.
func (r ListingRecord) Category(c Column) (string, bool) {
	switch c {
	case ColCountry:
		return r.Country, true
	case ColPropertyType:
		return r.PropertyType, true
	case ColRoomType:
		return r.RoomType, true
	case ColHostName:
		return r.HostName, true
	case ColName:
		return r.Name, true
	}
	return "", false
}

// Number returns the value of a numeric column.
func (r ListingRecord) Number(c Column) (float64, bool) {
	switch c {
	case ColPrice:
		return r.Price, true
	case ColAvailability365:
		return float64(r.Availability365), true
	}
	return 0, false
}

// Validate checks the row invariants enforced at import time.
func (r ListingRecord) Validate() error {
	if r.Price < 0 || math.IsNaN(r.Price) || math.IsInf(r.Price, 0) {
		return ErrInvalidRecord{Field: string(ColPrice), Reason: "must be a non-negative number"}
	}
	if r.Availability365 < 0 || r.Availability365 > 365 {
		return ErrInvalidRecord{Field: string(ColAvailability365), Reason: "must be within 0..365"}
	}
	return nil
}
