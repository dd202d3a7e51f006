package validation

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrorBody is the JSON shape handlers return on request validation failure.
type ErrorBody struct {
	Error  string              `json:"error"`
	Fields map[string][]string `json:"fields"`
}

// ErrorResponse flattens a validator error into per-field failed tags so the
// caller can see which field broke which rule. Non-validator errors pass
// through with their message.
func ErrorResponse(err error) ErrorBody {
	fields := map[string][]string{}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return ErrorBody{Error: err.Error(), Fields: fields}
	}
	for _, fe := range verrs {
		name := strings.ToLower(fe.Field())
		fields[name] = append(fields[name], fe.Tag())
	}
	return ErrorBody{Error: "validation_failed", Fields: fields}
}
