package web

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/JonMunkholm/dataimport/internal/core"
)

type optionsRequest struct {
	Format        string `validate:"omitempty,oneof=csv json spreadsheet markup"`
	Delimiter     string `validate:"omitempty,max=4"`
	OnDuplicate   string `validate:"omitempty,oneof=skip update error"`
	MaxRows       int    `validate:"gte=0"`
	BatchSize     int    `validate:"gte=0,lte=100000"`
	SkipFirstRows int    `validate:"gte=0"`
}

type autoMapRequest struct {
	Table   string   `json:"table" validate:"required"`
	Headers []string `json:"headers" validate:"required,min=1,dive,required"`
}

type validateRequest struct {
	Table    string              `json:"table" validate:"required"`
	Rows     []core.Row          `json:"rows" validate:"required"`
	Mappings []core.FieldMapping `json:"mappings"`
	Options  core.ImportOptions  `json:"options"`
}

type parseResponse struct {
	Parsed  *core.ParsedData `json:"parsed"`
	Preview *core.Preview    `json:"preview,omitempty"`
}

type autoMapResponse struct {
	Mappings []core.FieldMapping `json:"mappings"`
	Warnings []core.Warning      `json:"warnings"`
}

// validationHint names the first failing field of a validator error.
func validationHint(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Check the request fields"
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	if fe.Param() != "" {
		return fmt.Sprintf("Field %s failed %s=%s", field, fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("Field %s failed %s", field, fe.Tag())
}
