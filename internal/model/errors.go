package model

import "errors"

var (
	// ErrNotFound возвращается, если услуга, сессия оформления или заказ не найдены.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition возвращается при попытке перевести заказ из конечного статуса.
	ErrInvalidTransition = errors.New("invalid order status transition")
	// ErrGateway возвращается, если платёжный шлюз недоступен или не вернул ссылку на оплату.
	ErrGateway = errors.New("payment gateway error")
	// ErrSoldOut возвращается, если у услуги не осталось свободных мест.
	ErrSoldOut = errors.New("service sold out")
)

// ValidationError сообщает о некорректных входных данных до любой записи в хранилище.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// NewValidationError создаёт ошибку валидации для указанного поля.
func NewValidationError(field, msg string) error {
	return ValidationError{Field: field, Message: msg}
}

// IsValidation отличает ошибки валидации от инфраструктурных.
func IsValidation(err error) bool {
	var v ValidationError
	return errors.As(err, &v)
}
