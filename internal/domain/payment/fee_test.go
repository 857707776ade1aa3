package payment

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyleedevzero86/Health-mr-sub001/internal/apperr"
)

func TestQuoteFee(t *testing.T) {
	tests := []struct {
		coverage  Coverage
		discount  int64
		selfPay   int64
		insurance int64
	}{
		{CoverageBasicLivelihood, 0, 0, 10000},
		{CoverageMedicalAidType1, 0, 0, 10000},
		{CoverageMedicalAidType2, 0, 500, 9500},
		{CoverageInsuranceGeneral, 0, 2000, 8000},
		{CoverageInsuranceClinic, 0, 3000, 7000},
		{CoverageInsurancePharmacy, 0, 5000, 5000},
		{CoverageNone, 0, 10000, 0},
		{CoverageInsuranceGeneral, 10, 1800, 8000},
		{CoverageNone, 100, 0, 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.coverage), func(t *testing.T) {
			q, err := QuoteFee(won(10000), tt.coverage, decimal.NewFromInt(tt.discount))
			require.NoError(t, err)
			assert.Equal(t, tt.selfPay, q.SelfPay.Amount())
			assert.Equal(t, tt.insurance, q.Insurance.Amount())
			split, err := q.SelfPay.Add(q.Insurance)
			require.NoError(t, err)
			assert.True(t, q.Total.Equal(split))
			assert.Equal(t, int64(10000), q.Gross.Amount())
		})
	}
}

func TestQuoteFeeRoundsHalfUp(t *testing.T) {
	q, err := QuoteFee(won(12343), CoverageInsuranceGeneral, decimal.Zero)
	require.NoError(t, err)
	assert.Equal(t, int64(2469), q.SelfPay.Amount())
	assert.Equal(t, int64(9874), q.Insurance.Amount())

	q, err = QuoteFee(won(10010), CoverageMedicalAidType2, decimal.Zero)
	require.NoError(t, err)
	assert.Equal(t, int64(501), q.SelfPay.Amount())

	p, err := Initialize(uuid.New(), uuid.New(), nil, q.Amounts(), now)
	require.NoError(t, err)
	assert.True(t, p.Total().Equal(won(10010)))
}

func TestQuoteFeeRejectsUnknownCoverage(t *testing.T) {
	_, err := QuoteFee(won(1000), "PRIVATE", decimal.Zero)
	assert.ErrorIs(t, err, apperr.Validation)

	_, err = QuoteFee(won(1000), CoverageNone, decimal.NewFromInt(120))
	assert.ErrorIs(t, err, apperr.InvalidAmount)

	c, err := ParseCoverage("")
	require.NoError(t, err)
	assert.Equal(t, CoverageNone, c)

	c, err = ParseCoverage("insurance_clinic")
	require.NoError(t, err)
	assert.Equal(t, CoverageInsuranceClinic, c)
}
