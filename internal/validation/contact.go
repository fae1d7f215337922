// Package validation содержит проверки пользовательского ввода.
package validation

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/mmeshcher/webagency/internal/model"
)

const (
	maxNameLen    = 100
	maxCompanyLen = 150
	maxDetailsLen = 5000
	minPhone      = 8
	maxPhone      = 15
)

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)

// NormalizeContact обрезает пробелы во всех полях контакта.
func NormalizeContact(c model.Contact) model.Contact {
	return model.Contact{
		Name:           strings.TrimSpace(c.Name),
		Email:          strings.ToLower(strings.TrimSpace(c.Email)),
		Phone:          strings.TrimSpace(c.Phone),
		Company:        strings.TrimSpace(c.Company),
		ProjectDetails: strings.TrimSpace(c.ProjectDetails),
	}
}

// ValidateContact проверяет контактные данные покупателя. Имя, email и телефон обязательны.
func ValidateContact(c model.Contact) error {
	c = NormalizeContact(c)

	switch {
	case c.Name == "":
		return model.NewValidationError("name", "is required")
	case utf8.RuneCountInString(c.Name) > maxNameLen:
		return model.NewValidationError("name", "is too long")
	case c.Email == "":
		return model.NewValidationError("email", "is required")
	case !IsValidEmail(c.Email):
		return model.NewValidationError("email", "is malformed")
	case c.Phone == "":
		return model.NewValidationError("phone", "is required")
	case !IsValidPhone(c.Phone):
		return model.NewValidationError("phone", "is malformed")
	case utf8.RuneCountInString(c.Company) > maxCompanyLen:
		return model.NewValidationError("company", "is too long")
	case utf8.RuneCountInString(c.ProjectDetails) > maxDetailsLen:
		return model.NewValidationError("project_details", "is too long")
	}

	return nil
}

// IsValidEmail выполняет упрощённую синтаксическую проверку адреса.
func IsValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// IsValidPhone допускает ведущий «+», пробелы, дефисы и скобки; цифр должно быть от 8 до 15.
func IsValidPhone(phone string) bool {
	digits := 0
	for i, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return false
		}
	}
	return digits >= minPhone && digits <= maxPhone
}

// ValidateCredentials проверяет логин и пароль при регистрации.
func ValidateCredentials(login, password string) error {
	if strings.TrimSpace(login) == "" {
		return model.NewValidationError("login", "is required")
	}
	if utf8.RuneCountInString(password) < 6 {
		return model.NewValidationError("password", "must be at least 6 characters")
	}
	return nil
}
