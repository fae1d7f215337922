package pricing

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mmeshcher/webagency/internal/model"
)

func landingPage() model.Service {
	return model.Service{
		ID:    "landing-page",
		Name:  "Landing Page",
		Price: 150000,
		AddOns: []model.AddOn{
			{Name: "WhatsApp Integration", Price: 15000},
			{Name: "Live Chat Widget", Price: 25000},
			{Name: "SEO Setup", Price: 50000},
		},
	}
}

func TestTotal(t *testing.T) {
	svc := landingPage()

	tests := []struct {
		name        string
		addOns      []string
		installment bool
		want        int64
	}{
		{
			name: "base price only",
			want: 150000,
		},
		{
			name:   "two add-ons",
			addOns: []string{"WhatsApp Integration", "Live Chat Widget"},
			want:   190000,
		},
		{
			name:        "two add-ons with installment",
			addOns:      []string{"WhatsApp Integration", "Live Chat Widget"},
			installment: true,
			want:        247000,
		},
		{
			name:   "unknown add-on ignored",
			addOns: []string{"Live Chat Widget", "Blockchain"},
			want:   175000,
		},
		{
			name:   "duplicate counted once",
			addOns: []string{"SEO Setup", "SEO Setup"},
			want:   200000,
		},
		{
			name:        "installment rounds half up",
			addOns:      nil,
			installment: true,
			want:        195000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Total(svc, tt.addOns, tt.installment))
		})
	}
}

func TestTotal_OrderIndependent(t *testing.T) {
	svc := landingPage()

	a := Total(svc, []string{"SEO Setup", "WhatsApp Integration", "Live Chat Widget"}, false)
	b := Total(svc, []string{"Live Chat Widget", "SEO Setup", "WhatsApp Integration"}, false)

	assert.Equal(t, a, b)
	assert.Equal(t, int64(240000), a)
}

func TestTotal_EverySubsetMatchesSum(t *testing.T) {
	svc := landingPage()
	n := len(svc.AddOns)

	for mask := 0; mask < 1<<n; mask++ {
		var names []string
		want := svc.Price
		for i := 0; i < n; i++ {
			if mask&(1<<i) != 0 {
				names = append(names, svc.AddOns[i].Name)
				want += svc.AddOns[i].Price
			}
		}

		assert.Equal(t, want, Total(svc, names, false), "mask %b", mask)
		assert.Equal(t, (want*130+50)/100, Total(svc, names, true), "mask %b", mask)
	}
}

func TestTotal_SurchargeOnOddAmount(t *testing.T) {
	svc := model.Service{Price: 5}

	// 5 × 1.3 = 6.5 → 7
	assert.Equal(t, int64(7), Total(svc, nil, true))
}

func TestTotal_LargeAmountsDoNotOverflow(t *testing.T) {
	tests := []struct {
		name        string
		price       int64
		addOn       int64
		installment bool
		want        int64
	}{
		{name: "max catalog price with surcharge", price: MaxPrice, installment: true, want: 1_300_000_000_000_000},
		{name: "above old overflow point", price: 80_000_000_000_000_000, installment: true, want: 104_000_000_000_000_000},
		{name: "odd tail keeps rounding", price: 70_000_000_000_000_005, installment: true, want: 91_000_000_000_000_007},
		{name: "surcharge saturates", price: math.MaxInt64 - 1, installment: true, want: math.MaxInt64},
		{name: "add-on sum saturates", price: math.MaxInt64, addOn: 10, want: math.MaxInt64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := model.Service{Price: tt.price, AddOns: []model.AddOn{{Name: "Extra", Price: tt.addOn}}}
			got := Total(svc, []string{"Extra"}, tt.installment)
			assert.Equal(t, tt.want, got)
			assert.Positive(t, got)
		})
	}
}

func TestFullPrice(t *testing.T) {
	assert.Equal(t, int64(240000), FullPrice(landingPage()))
}

func TestSelectAddOns(t *testing.T) {
	svc := landingPage()

	got := SelectAddOns(svc, []string{"SEO Setup", "Nope", "Live Chat Widget", "SEO Setup"})
	assert.Equal(t, []string{"Live Chat Widget", "SEO Setup"}, got)

	assert.Empty(t, SelectAddOns(svc, nil))
}

func TestDeliveryEstimate(t *testing.T) {
	from := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		duration string
		want     time.Time
		ok       bool
	}{
		{"7-14 days", from.AddDate(0, 0, 14), true},
		{"3 days", from.AddDate(0, 0, 3), true},
		{"2 weeks", from.AddDate(0, 0, 14), true},
		{"1 month", from.AddDate(0, 1, 0), true},
		{"14 hari kerja", from.AddDate(0, 0, 14), true},
		{"2-3 minggu", from.AddDate(0, 0, 21), true},
		{"1 bulan", from.AddDate(0, 1, 0), true},
		{"as soon as possible", time.Time{}, false},
		{"", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.duration, func(t *testing.T) {
			got, ok := DeliveryEstimate(from, tt.duration)
			assert.Equal(t, tt.ok, ok)
			assert.True(t, tt.want.Equal(got), "got %v want %v", got, tt.want)
		})
	}
}
