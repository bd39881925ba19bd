package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kiranshivaraju/insightx/internal/api/response"
	"github.com/kiranshivaraju/insightx/pkg/models"
)

const maxBodyBytes = 64 << 10

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeIntent reads and validates an Intent body, writing the error
// response itself when it returns false.
func decodeIntent(w http.ResponseWriter, r *http.Request) (models.Intent, bool) {
	var in models.Intent
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			response.Error(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE",
				"Request body exceeds maximum allowed size", map[string]int64{"max_size": tooLarge.Limit})
		case errors.Is(err, models.ErrUnknownOperation):
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		default:
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
		}
		return models.Intent{}, false
	}

	if problems := validateIntent(in); len(problems) > 0 {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request", problems)
		return models.Intent{}, false
	}
	return in, true
}

// validateIntent checks field formats. Whether the intent is computable is
// the guard's decision, not this one's.
func validateIntent(in models.Intent) map[string]string {
	problems := make(map[string]string)

	check := func(prefix string, v any) {
		err := validate.Struct(v)
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return
		}
		for _, fe := range verrs {
			problems[prefix+"."+fe.Field()] = fieldMessage(fe)
		}
	}

	check("filters", in.Filters)
	if c, ok := in.Op().(models.SegmentComparison); ok {
		check("segment_a", c.A)
		check("segment_b", c.B)
	}
	if tw := in.TimeWindow; tw != nil {
		check("time_window", *tw)
		if tw.From != "" && tw.To != "" && tw.From > tw.To {
			problems["time_window"] = "from must not be after to"
		}
	}
	return problems
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "datetime":
		return fmt.Sprintf("%s must be a date (YYYY-MM-DD)", fe.Field())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
