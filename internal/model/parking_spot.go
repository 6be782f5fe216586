package model

import (
	"fmt"
	"time"
)

// Reference layout: rows A-F with ten spots each, chargers on rows A and F.
var (
	CatalogRows = []string{"A", "B", "C", "D", "E", "F"}
	SpotsPerRow = 10
	ChargerRows = map[string]bool{"A": true, "F": true}
)

// ParkingSpot is one physical spot of the catalog.
type ParkingSpot struct {
	ID                 string    `gorm:"primaryKey;size:8" json:"spotId"`
	Row                string    `gorm:"size:1;not null;index" json:"row"`
	Number             int       `gorm:"not null" json:"number"`
	HasElectricCharger bool      `gorm:"not null" json:"hasElectricCharger"`
	CreatedAt          time.Time `json:"-"`
}

// SpotID formats a row letter and a spot number as "<Row><NN>".
func SpotID(row string, number int) string {
	return fmt.Sprintf("%s%02d", row, number)
}

// DefaultCatalog returns the reference layout ordered by spot id.
func DefaultCatalog() []ParkingSpot {
	spots := make([]ParkingSpot, 0, len(CatalogRows)*SpotsPerRow)
	for _, row := range CatalogRows {
		for n := 1; n <= SpotsPerRow; n++ {
			spots = append(spots, ParkingSpot{
				ID:                 SpotID(row, n),
				Row:                row,
				Number:             n,
				HasElectricCharger: ChargerRows[row],
			})
		}
	}
	return spots
}
