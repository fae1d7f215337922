package checkout

import (
	"net/url"
	"strconv"
	"strings"
)

// Имена query-параметров, через которые состояние оформления переживает переход по ссылке.
const (
	ParamService = "service"
	ParamPrice   = "price"
	ParamAddOns  = "addons"
	ParamSession = "session"
)

// Query: состояние оформления, переданное через URL.
// Price носит справочный характер: итоговая цена всегда пересчитывается на сервере.
type Query struct {
	ServiceID string
	Price     int64
	AddOns    []string
	Session   string
}

// EncodeQuery кодирует состояние в строку query. Каждая опция экранируется отдельно,
// поэтому запятые внутри названий не ломают список.
func EncodeQuery(q Query) string {
	v := url.Values{}
	if q.ServiceID != "" {
		v.Set(ParamService, q.ServiceID)
	}
	if q.Price > 0 {
		v.Set(ParamPrice, strconv.FormatInt(q.Price, 10))
	}
	if len(q.AddOns) > 0 {
		escaped := make([]string, 0, len(q.AddOns))
		for _, a := range q.AddOns {
			escaped = append(escaped, url.QueryEscape(a))
		}
		v.Set(ParamAddOns, strings.Join(escaped, ","))
	}
	if q.Session != "" {
		v.Set(ParamSession, q.Session)
	}
	return v.Encode()
}

// DecodeQuery разбирает параметры, записанные EncodeQuery. Некорректная цена читается как 0,
// некорректно экранированные опции пропускаются.
func DecodeQuery(v url.Values) Query {
	q := Query{
		ServiceID: strings.TrimSpace(v.Get(ParamService)),
		Session:   strings.TrimSpace(v.Get(ParamSession)),
	}

	if p, err := strconv.ParseInt(v.Get(ParamPrice), 10, 64); err == nil && p > 0 {
		q.Price = p
	}

	if raw := v.Get(ParamAddOns); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			name, err := url.QueryUnescape(part)
			if err != nil || name == "" {
				continue
			}
			q.AddOns = append(q.AddOns, name)
		}
	}

	return q
}

// Empty сообщает, что из ссылки нечего восстановить.
func (q Query) Empty() bool {
	return q.ServiceID == "" && q.Session == ""
}
