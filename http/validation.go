package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// PredictRequest 预测请求体
type PredictRequest struct {
	Year *int `json:"year" validate:"required,gte=1960,lte=2030"`
}

type ValidationDetail struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

type ValidationErrorResponse struct {
	Detail []ValidationDetail `json:"detail"`
}

// rawPredictRequest keeps the year as a number literal so integral floats
// such as 2020.0 are accepted and fractional ones rejected with a precise message.
type rawPredictRequest struct {
	Year *json.Number `json:"year"`
}

// ParsePredictRequest decodes and validates a prediction body. A non-empty detail
// list means the request must be rejected with 422.
func ParsePredictRequest(body io.Reader) (PredictRequest, []ValidationDetail) {
	var req PredictRequest
	var raw rawPredictRequest

	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return req, []ValidationDetail{decodeDetail(err)}
	}
	if raw.Year != nil {
		year, detail := integerYear(*raw.Year)
		if detail != nil {
			return req, []ValidationDetail{*detail}
		}
		req.Year = &year
	}

	if err := validate.Struct(req); err != nil {
		return req, validationDetails(err)
	}
	return req, nil
}

func decodeDetail(err error) ValidationDetail {
	var typeErr *json.UnmarshalTypeError
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, io.EOF):
		return ValidationDetail{Loc: []string{"body"}, Msg: "Field required", Type: "missing"}
	case errors.As(err, &typeErr):
		if typeErr.Field == "year" {
			return ValidationDetail{Loc: []string{"body", "year"}, Msg: "Input should be a valid integer", Type: "int_type"}
		}
		return ValidationDetail{Loc: []string{"body"}, Msg: "Input should be a valid dictionary or object to extract fields from", Type: "model_attributes_type"}
	case errors.As(err, &maxErr):
		return ValidationDetail{Loc: []string{"body"}, Msg: "Request body too large", Type: "value_error"}
	default:
		// invalid number literals inside a json.Number field surface as plain errors
		if strings.Contains(err.Error(), "invalid number literal") {
			return ValidationDetail{Loc: []string{"body", "year"}, Msg: "Input should be a valid integer", Type: "int_type"}
		}
		return ValidationDetail{Loc: []string{"body"}, Msg: "JSON decode error", Type: "json_invalid"}
	}
}

func integerYear(n json.Number) (int, *ValidationDetail) {
	loc := []string{"body", "year"}
	if v, err := n.Int64(); err == nil {
		if v < math.MinInt32 || v > math.MaxInt32 {
			return 0, &ValidationDetail{Loc: loc, Msg: "Input should be a valid integer", Type: "int_type"}
		}
		return int(v), nil
	}
	f, err := n.Float64()
	if err != nil || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
		return 0, &ValidationDetail{Loc: loc, Msg: "Input should be a valid integer", Type: "int_type"}
	}
	if f != math.Trunc(f) {
		return 0, &ValidationDetail{Loc: loc, Msg: "Input should be a valid integer, got a number with a fractional part", Type: "int_from_float"}
	}
	return int(f), nil
}

func validationDetails(err error) []ValidationDetail {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return []ValidationDetail{{Loc: []string{"body"}, Msg: err.Error(), Type: "value_error"}}
	}
	details := make([]ValidationDetail, 0, len(errs))
	for _, fe := range errs {
		detail := ValidationDetail{Loc: []string{"body", fe.Field()}}
		switch fe.Tag() {
		case "required":
			detail.Msg, detail.Type = "Field required", "missing"
		case "gte":
			detail.Msg, detail.Type = fmt.Sprintf("Input should be greater than or equal to %s", fe.Param()), "greater_than_equal"
		case "lte":
			detail.Msg, detail.Type = fmt.Sprintf("Input should be less than or equal to %s", fe.Param()), "less_than_equal"
		default:
			detail.Msg, detail.Type = fe.Error(), fe.Tag()
		}
		details = append(details, detail)
	}
	return details
}
