package pricing

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var durationPattern = regexp.MustCompile(`(\d+)\s*(?:-|–|to|sampai|s/d)?\s*(\d+)?\s*([a-zA-Z]+)`)

// DeliveryEstimate оценивает дату сдачи по текстовому сроку услуги, например «7-14 days» или «2 minggu».
// Берётся верхняя граница диапазона.
func DeliveryEstimate(from time.Time, duration string) (time.Time, bool) {
	m := durationPattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(duration)))
	if m == nil {
		return time.Time{}, false
	}

	n, err := strconv.Atoi(m[1])
	if err != nil {
		return time.Time{}, false
	}
	if m[2] != "" {
		upper, err := strconv.Atoi(m[2])
		if err != nil {
			return time.Time{}, false
		}
		if upper > n {
			n = upper
		}
	}
	if n <= 0 {
		return time.Time{}, false
	}

	switch unit := m[3]; {
	case strings.HasPrefix(unit, "day"), unit == "hari":
		return from.AddDate(0, 0, n), true
	case strings.HasPrefix(unit, "week"), unit == "minggu", unit == "pekan":
		return from.AddDate(0, 0, 7*n), true
	case strings.HasPrefix(unit, "month"), unit == "bulan":
		return from.AddDate(0, n, 0), true
	}

	return time.Time{}, false
}
