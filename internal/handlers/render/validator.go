package render

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/akotlyarov/lingua/internal/models"
)

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("goal", validateGoal)
	v.RegisterTagNameFunc(useJSONTagNames)
	return v
}

// Report field names by json tag so validation errors match the wire format
func useJSONTagNames(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	// skip if tag key says it should be ignored
	if name == "-" {
		return ""
	}
	return name
}

func validateGoal(fl validator.FieldLevel) bool {
	_, ok := models.ParseGoal(fl.Field().String())
	return ok
}
