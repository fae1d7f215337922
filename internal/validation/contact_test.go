package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mmeshcher/webagency/internal/model"
)

func TestValidateContact(t *testing.T) {
	valid := model.Contact{
		Name:  "Siti Rahma",
		Email: "siti@example.co.id",
		Phone: "+62 812-3456-7890",
	}

	tests := []struct {
		name    string
		mutate  func(c *model.Contact)
		wantErr string
	}{
		{name: "valid", mutate: func(c *model.Contact) {}},
		{name: "missing name", mutate: func(c *model.Contact) { c.Name = "   " }, wantErr: "name"},
		{name: "missing email", mutate: func(c *model.Contact) { c.Email = "" }, wantErr: "email"},
		{name: "bad email", mutate: func(c *model.Contact) { c.Email = "siti@" }, wantErr: "email"},
		{name: "missing phone", mutate: func(c *model.Contact) { c.Phone = "" }, wantErr: "phone"},
		{name: "letters in phone", mutate: func(c *model.Contact) { c.Phone = "0812abc45678" }, wantErr: "phone"},
		{name: "short phone", mutate: func(c *model.Contact) { c.Phone = "12345" }, wantErr: "phone"},
		{name: "optional company", mutate: func(c *model.Contact) { c.Company = "PT Sinar" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)

			err := ValidateContact(c)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}

			assert.True(t, model.IsValidation(err))
			var ve model.ValidationError
			assert.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.wantErr, ve.Field)
		})
	}
}

func TestIsValidPhone(t *testing.T) {
	assert.True(t, IsValidPhone("081234567890"))
	assert.True(t, IsValidPhone("+62 (812) 345-678"))
	assert.False(t, IsValidPhone("62+812345678"))
	assert.False(t, IsValidPhone("1234567890123456"))
}

func TestNormalizeContact(t *testing.T) {
	c := NormalizeContact(model.Contact{Name: " Ana ", Email: " Ana@Example.COM "})
	assert.Equal(t, "Ana", c.Name)
	assert.Equal(t, "ana@example.com", c.Email)
}

func TestValidateCredentials(t *testing.T) {
	assert.NoError(t, ValidateCredentials("user", "secret1"))
	assert.True(t, model.IsValidation(ValidateCredentials("", "secret1")))
	assert.True(t, model.IsValidation(ValidateCredentials("user", "123")))
}
