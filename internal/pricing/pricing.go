// Package pricing рассчитывает итоговую стоимость услуги с опциями и рассрочкой.
package pricing

import (
	"math"
	"sort"

	"github.com/mmeshcher/webagency/internal/model"
)

// InstallmentSurchargePercent: наценка за оплату в три платежа, в процентах от суммы.
const InstallmentSurchargePercent = 130

// MaxPrice: верхняя граница цены услуги вместе со всеми опциями.
const MaxPrice int64 = 1_000_000_000_000_000

// Total возвращает итоговую цену: базовая цена плюс выбранные опции и, при рассрочке, наценка.
// Неизвестные названия опций игнорируются, повторы учитываются один раз.
func Total(svc model.Service, addOns []string, installment bool) int64 {
	total := svc.Price
	for _, a := range SelectAddOns(svc, addOns) {
		total = addCapped(total, addOnPrice(svc, a))
	}

	if installment {
		total = applySurcharge(total)
	}

	if total < 0 {
		return 0
	}
	return total
}

// SelectAddOns нормализует выбор: оставляет только предлагаемые услугой опции без повторов, по алфавиту.
func SelectAddOns(svc model.Service, names []string) []string {
	offered := make(map[string]struct{}, len(svc.AddOns))
	for _, a := range svc.AddOns {
		offered[a.Name] = struct{}{}
	}

	seen := make(map[string]struct{}, len(names))
	res := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := offered[n]; !ok {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		res = append(res, n)
	}

	sort.Strings(res)
	return res
}

func addOnPrice(svc model.Service, name string) int64 {
	for _, a := range svc.AddOns {
		if a.Name == name {
			return a.Price
		}
	}
	return 0
}

// FullPrice: цена услуги со всеми предлагаемыми опциями, без рассрочки.
func FullPrice(svc model.Service) int64 {
	total := svc.Price
	for _, a := range svc.AddOns {
		total = addCapped(total, a.Price)
	}
	return total
}

// addCapped складывает неотрицательные суммы, упираясь в math.MaxInt64 вместо переполнения.
func addCapped(a, b int64) int64 {
	if b > 0 && a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

// applySurcharge округляет total × 1.30 до целого (половина вверх) без перехода к float.
// Сумма делится на 100 до умножения, поэтому промежуточное значение не переполняется.
func applySurcharge(total int64) int64 {
	if total <= 0 {
		return total
	}
	q, r := total/100, total%100
	if q > (math.MaxInt64-InstallmentSurchargePercent)/InstallmentSurchargePercent {
		return math.MaxInt64
	}
	return q*InstallmentSurchargePercent + (r*InstallmentSurchargePercent+50)/100
}
