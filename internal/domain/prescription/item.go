package prescription

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/skyleedevzero86/Health-mr-sub001/internal/apperr"
)

// Item bounds
const (
	MaxDrugCodeLen = 50
	MaxDrugNameLen = 200
	MaxDosageLen   = 500
	MaxDoseLen     = 100
	MaxUnitLen     = 20
	MinFrequency   = 1
	MaxFrequency   = 10
	MinDays        = 1
	MaxDays        = 365
)

// Item is one drug line of a prescription
type Item struct {
	ID            uuid.UUID `json:"id"`
	DrugCode      string    `json:"drug_code"`
	DrugName      string    `json:"drug_name"`
	Dosage        string    `json:"dosage,omitempty"`
	Dose          string    `json:"dose,omitempty"`
	Frequency     int       `json:"frequency"`
	Days          int       `json:"days"`
	TotalQuantity int       `json:"total_quantity"`
	Unit          string    `json:"unit,omitempty"`
	Note          string    `json:"note,omitempty"`
}

// ItemSpec describes an item to construct. A zero TotalQuantity is derived
// as Frequency x Days.
type ItemSpec struct {
	DrugCode      string `json:"drug_code"`
	DrugName      string `json:"drug_name"`
	Dosage        string `json:"dosage"`
	Dose          string `json:"dose"`
	Frequency     int    `json:"frequency"`
	Days          int    `json:"days"`
	TotalQuantity int    `json:"total_quantity"`
	Unit          string `json:"unit"`
	Note          string `json:"note"`
}

// NewItem validates spec and builds an item
func NewItem(id uuid.UUID, spec ItemSpec) (*Item, error) {
	item := &Item{
		ID:            id,
		DrugCode:      strings.TrimSpace(spec.DrugCode),
		DrugName:      strings.TrimSpace(spec.DrugName),
		Dosage:        strings.TrimSpace(spec.Dosage),
		Dose:          strings.TrimSpace(spec.Dose),
		Frequency:     spec.Frequency,
		Days:          spec.Days,
		TotalQuantity: spec.TotalQuantity,
		Unit:          strings.TrimSpace(spec.Unit),
		Note:          strings.TrimSpace(spec.Note),
	}
	if item.TotalQuantity == 0 {
		item.CalculateTotalQuantity()
	}
	if err := item.validate(); err != nil {
		return nil, err
	}
	return item, nil
}

// CalculateTotalQuantity sets the total to frequency x days
func (i *Item) CalculateTotalQuantity() {
	i.TotalQuantity = i.Frequency * i.Days
}

// ItemUpdate lists the fields UpdateInfo changes; nil or blank values are ignored
type ItemUpdate struct {
	Dosage    *string `json:"dosage,omitempty"`
	Dose      *string `json:"dose,omitempty"`
	Frequency *int    `json:"frequency,omitempty"`
	Days      *int    `json:"days,omitempty"`
	Unit      *string `json:"unit,omitempty"`
	Note      *string `json:"note,omitempty"`
}

// UpdateInfo applies u. Bounds are checked before anything changes and the
// total is recomputed when frequency or days change.
func (i *Item) UpdateInfo(u ItemUpdate) error {
	next := *i
	if v, ok := nonBlank(u.Dosage); ok {
		next.Dosage = v
	}
	if v, ok := nonBlank(u.Dose); ok {
		next.Dose = v
	}
	if v, ok := nonBlank(u.Unit); ok {
		next.Unit = v
	}
	if v, ok := nonBlank(u.Note); ok {
		next.Note = v
	}
	if u.Frequency != nil {
		next.Frequency = *u.Frequency
	}
	if u.Days != nil {
		next.Days = *u.Days
	}
	if u.Frequency != nil || u.Days != nil {
		next.CalculateTotalQuantity()
	}
	if err := next.validate(); err != nil {
		return err
	}
	*i = next
	return nil
}

func (i *Item) validate() error {
	switch {
	case i.DrugCode == "":
		return apperr.New(apperr.Validation, "drug code is required")
	case i.DrugName == "":
		return apperr.New(apperr.Validation, "drug name is required")
	}
	if err := maxLen("drug code", i.DrugCode, MaxDrugCodeLen); err != nil {
		return err
	}
	if err := maxLen("drug name", i.DrugName, MaxDrugNameLen); err != nil {
		return err
	}
	if err := maxLen("dosage", i.Dosage, MaxDosageLen); err != nil {
		return err
	}
	if err := maxLen("dose", i.Dose, MaxDoseLen); err != nil {
		return err
	}
	if err := maxLen("unit", i.Unit, MaxUnitLen); err != nil {
		return err
	}
	if i.Frequency < MinFrequency || i.Frequency > MaxFrequency {
		return apperr.Newf(apperr.Validation, "frequency must be between %d and %d, got %d", MinFrequency, MaxFrequency, i.Frequency)
	}
	if i.Days < MinDays || i.Days > MaxDays {
		return apperr.Newf(apperr.Validation, "days must be between %d and %d, got %d", MinDays, MaxDays, i.Days)
	}
	if i.TotalQuantity < 1 {
		return apperr.Newf(apperr.Validation, "total quantity must be at least 1, got %d", i.TotalQuantity)
	}
	return nil
}

func maxLen(field, v string, n int) error {
	if utf8.RuneCountInString(v) > n {
		return apperr.Newf(apperr.Validation, "%s must be at most %d characters", field, n)
	}
	return nil
}

func nonBlank(p *string) (string, bool) {
	if p == nil {
		return "", false
	}
	v := strings.TrimSpace(*p)
	return v, v != ""
}
