package treatment

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/skyleedevzero86/Health-mr-sub001/internal/apperr"
)

// Category is the kind of clinical encounter
type Category string

const (
	CategoryOutpatient Category = "OUTPATIENT"
	CategoryInpatient  Category = "INPATIENT"
	CategoryEmergency  Category = "EMERGENCY"
)

// DetailStatus is the status of a category sub-record
type DetailStatus string

const DetailStatusPending DetailStatus = "PENDING"

// Detail is the category-specific sub-record stored alongside a treatment.
// Exactly one of the payload pointers is set, selected by Category.
type Detail struct {
	Category    Category          `json:"category"`
	TreatmentID uuid.UUID         `json:"treatment_id"`
	CheckInID   *uuid.UUID        `json:"check_in_id,omitempty"`
	Status      DetailStatus      `json:"status"`
	Outpatient  *OutpatientDetail `json:"outpatient,omitempty"`
	Inpatient   *InpatientDetail  `json:"inpatient,omitempty"`
	Emergency   *EmergencyDetail  `json:"emergency,omitempty"`
}

// OutpatientDetail holds outpatient visit notes
type OutpatientDetail struct {
	PreTreatment string `json:"pre_treatment,omitempty"`
	Comment      string `json:"comment,omitempty"`
}

// InpatientDetail holds admission placement
type InpatientDetail struct {
	Ward string `json:"ward,omitempty"`
	Bed  string `json:"bed,omitempty"`
}

// EmergencyDetail holds triage information
type EmergencyDetail struct {
	TriageLevel int    `json:"triage_level,omitempty"`
	ArrivalMode string `json:"arrival_mode,omitempty"`
}

// Every category must have a factory; ParseCategory rejects the rest.
var detailFactories = map[Category]func(d *Detail){
	CategoryOutpatient: func(d *Detail) { d.Outpatient = &OutpatientDetail{} },
	CategoryInpatient:  func(d *Detail) { d.Inpatient = &InpatientDetail{} },
	CategoryEmergency:  func(d *Detail) { d.Emergency = &EmergencyDetail{} },
}

// ParseCategory validates a category name
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := detailFactories[c]; !ok {
		return "", apperr.Newf(apperr.Validation, "unknown treatment category %q", s)
	}
	return c, nil
}

// Categories lists the supported categories in name order
func Categories() []Category {
	out := make([]Category, 0, len(detailFactories))
	for c := range detailFactories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func newDetail(category Category, treatmentID uuid.UUID, checkInID *uuid.UUID) (Detail, error) {
	build, ok := detailFactories[category]
	if !ok {
		return Detail{}, apperr.Newf(apperr.Validation, "unknown treatment category %q", category)
	}
	d := Detail{
		Category:    category,
		TreatmentID: treatmentID,
		CheckInID:   checkInID,
		Status:      DetailStatusPending,
	}
	build(&d)
	return d, nil
}
