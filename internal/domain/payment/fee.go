package payment

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/skyleedevzero86/Health-mr-sub001/internal/apperr"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/money"
)

// Coverage is the patient's benefit qualification
type Coverage string

const (
	CoverageBasicLivelihood   Coverage = "BASIC_LIVELIHOOD"
	CoverageMedicalAidType1   Coverage = "MEDICAL_AID_TYPE1"
	CoverageMedicalAidType2   Coverage = "MEDICAL_AID_TYPE2"
	CoverageInsuranceGeneral  Coverage = "INSURANCE_GENERAL"
	CoverageInsuranceClinic   Coverage = "INSURANCE_CLINIC"
	CoverageInsurancePharmacy Coverage = "INSURANCE_PHARMACY"
	CoverageNone              Coverage = "NONE"
)

// selfPayRates is the patient's share in percent
var selfPayRates = map[Coverage]decimal.Decimal{
	CoverageBasicLivelihood:   decimal.Zero,
	CoverageMedicalAidType1:   decimal.Zero,
	CoverageMedicalAidType2:   decimal.NewFromInt(5),
	CoverageInsuranceGeneral:  decimal.NewFromInt(20),
	CoverageInsuranceClinic:   decimal.NewFromInt(30),
	CoverageInsurancePharmacy: decimal.NewFromInt(50),
	CoverageNone:              decimal.NewFromInt(100),
}

// ParseCoverage validates a coverage name; blank means no coverage
func ParseCoverage(s string) (Coverage, error) {
	c := Coverage(strings.ToUpper(strings.TrimSpace(s)))
	if c == "" {
		return CoverageNone, nil
	}
	if _, ok := selfPayRates[c]; !ok {
		return "", apperr.Newf(apperr.Validation, "unknown coverage %q", s)
	}
	return c, nil
}

// SelfPayRate returns the patient's share in percent
func SelfPayRate(c Coverage) (decimal.Decimal, bool) {
	r, ok := selfPayRates[c]
	return r, ok
}

// Quote is a computed fee split ready for Initialize
type Quote struct {
	Gross     money.Money `json:"gross"`
	Discount  money.Money `json:"discount"`
	Total     money.Money `json:"total"`
	SelfPay   money.Money `json:"self_pay"`
	Insurance money.Money `json:"insurance"`
}

// Amounts converts the quote into initialization amounts
func (q Quote) Amounts() Amounts {
	return Amounts{Total: q.Total, SelfPay: q.SelfPay, Insurance: q.Insurance}
}

// QuoteFee splits a gross fee into self-pay and insurance by coverage, then
// applies a contract discount (percent) to the self-pay share. The discount
// also reduces the total so that total = self-pay + insurance holds.
func QuoteFee(gross money.Money, c Coverage, discountRate decimal.Decimal) (Quote, error) {
	rate, ok := selfPayRates[c]
	if !ok {
		return Quote{}, apperr.Newf(apperr.Validation, "unknown coverage %q", c)
	}
	selfPay, err := gross.Percentage(rate)
	if err != nil {
		return Quote{}, err
	}
	insurance, err := gross.Subtract(selfPay)
	if err != nil {
		return Quote{}, err
	}
	discount, err := selfPay.Percentage(discountRate)
	if err != nil {
		return Quote{}, err
	}
	discounted, err := selfPay.Subtract(discount)
	if err != nil {
		return Quote{}, err
	}
	total, err := discounted.Add(insurance)
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		Gross:     gross,
		Discount:  discount,
		Total:     total,
		SelfPay:   discounted,
		Insurance: insurance,
	}, nil
}
