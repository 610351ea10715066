package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Category string

const (
	CategoryVegetables Category = "vegetables"
	CategoryFruits     Category = "fruits"
	CategoryGrains     Category = "grains"
	CategoryDairy      Category = "dairy"
	CategoryPoultry    Category = "poultry"
	CategoryOthers     Category = "others"
)

type QualityGrade string

const (
	GradeOrganic QualityGrade = "organic"
	GradeA       QualityGrade = "grade-a"
	GradeB       QualityGrade = "grade-b"
	GradeRegular QualityGrade = "regular"
)

type Quantity struct {
	Value int    `json:"value" validate:"gte=0"`
	Unit  string `json:"unit" validate:"omitempty,oneof=kg quintal ton litre piece dozen"`
}

type Location struct {
	District string `json:"district"`
	State    string `json:"state"`
}

type Product struct {
	ID           string          `json:"id"`
	FarmerID     string          `json:"farmerId"`
	ProductName  string          `json:"productName"`
	Category     Category        `json:"category"`
	Description  string          `json:"description,omitempty"`
	Quantity     Quantity        `json:"quantity"`
	PricePerUnit decimal.Decimal `json:"pricePerUnit"`
	MarketPrice  decimal.Decimal `json:"marketPrice"`
	Images       []string        `json:"images,omitempty"`
	HarvestDate  time.Time       `json:"harvestDate"`
	Location     Location        `json:"location"`
	QualityGrade QualityGrade    `json:"qualityGrade"`
	IsAvailable  bool            `json:"isAvailable"`
	Views        int             `json:"views"`
	Tags         []string        `json:"tags,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}
