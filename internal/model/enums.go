package model

// ItemCategory is the closed set of listing categories.
type ItemCategory string

const (
	CategoryFurniture    ItemCategory = "furniture"
	CategoryElectronics  ItemCategory = "electronics"
	CategoryAppliances   ItemCategory = "appliances"
	CategoryCollectibles ItemCategory = "collectibles"
	CategoryVehicles     ItemCategory = "vehicles"
	CategoryTools        ItemCategory = "tools"
	CategoryOther        ItemCategory = "other"
)

// Valid reports whether c is a known category.
func (c ItemCategory) Valid() bool {
	switch c {
	case CategoryFurniture, CategoryElectronics, CategoryAppliances,
		CategoryCollectibles, CategoryVehicles, CategoryTools, CategoryOther:
		return true
	}
	return false
}

// ItemSubtype is the closed set of furniture subtypes. Items outside the
// furniture category carry SubtypeOther.
type ItemSubtype string

const (
	SubtypeDiningTable ItemSubtype = "dining_table"
	SubtypeDiningChair ItemSubtype = "dining_chair"
	SubtypeSofa        ItemSubtype = "sofa"
	SubtypeBed         ItemSubtype = "bed"
	SubtypeDresser     ItemSubtype = "dresser"
	SubtypeDesk        ItemSubtype = "desk"
	SubtypeBookshelf   ItemSubtype = "bookshelf"
	SubtypeCabinet     ItemSubtype = "cabinet"
	SubtypeOther       ItemSubtype = "other"

	// SubtypeAny marks an intent with no subtype requirement.
	SubtypeAny ItemSubtype = ""
)

// Valid reports whether s is a known subtype.
func (s ItemSubtype) Valid() bool {
	switch s {
	case SubtypeDiningTable, SubtypeDiningChair, SubtypeSofa, SubtypeBed,
		SubtypeDresser, SubtypeDesk, SubtypeBookshelf, SubtypeCabinet, SubtypeOther:
		return true
	}
	return false
}

// AuctionSource is the closed set of supported listing origins.
type AuctionSource string

const (
	SourceEstateSales    AuctionSource = "estatesales_net"
	SourceHiBid          AuctionSource = "hibid"
	SourceFloridaSurplus AuctionSource = "florida_surplus"
)

// Valid reports whether s is a supported source.
func (s AuctionSource) Valid() bool {
	switch s {
	case SourceEstateSales, SourceHiBid, SourceFloridaSurplus:
		return true
	}
	return false
}

// AlertOutcome is the lifecycle state of a sent alert.
//
// pending → clicked/ignored/expired; clicked may be manually promoted to
// won or lost. ignored, expired, won and lost are terminal.
type AlertOutcome string

const (
	OutcomePending AlertOutcome = "pending"
	OutcomeClicked AlertOutcome = "clicked"
	OutcomeIgnored AlertOutcome = "ignored"
	OutcomeExpired AlertOutcome = "expired"
	OutcomeWon     AlertOutcome = "won"
	OutcomeLost    AlertOutcome = "lost"
)

// Valid reports whether o is a known outcome.
func (o AlertOutcome) Valid() bool {
	switch o {
	case OutcomePending, OutcomeClicked, OutcomeIgnored, OutcomeExpired, OutcomeWon, OutcomeLost:
		return true
	}
	return false
}

// Terminal reports whether o ends the automatic lifecycle: the periodic
// sweep never touches an alert in a terminal state.
func (o AlertOutcome) Terminal() bool {
	switch o {
	case OutcomeIgnored, OutcomeExpired, OutcomeWon, OutcomeLost:
		return true
	case OutcomePending, OutcomeClicked:
		return false
	}
	return false
}
