package segment

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// URLCount is the number of URLs an analysis compares.
const URLCount = 3

// AnalyzeRequest is the body of POST /process-urls and the arguments of
// the vizopt_analyze tool.
type AnalyzeRequest struct {
	URLs        []string `json:"urls" validate:"required,len=3,dive,required,http_url"`
	WebsiteType string   `json:"website_type,omitempty" validate:"omitempty,max=64"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the request before any side effect. Messages are meant
// for the client.
func (r *AnalyzeRequest) Validate() error {
	// required accepts an empty non-nil slice.
	if len(r.URLs) == 0 {
		return validationError("No URLs provided")
	}
	err := validate.Struct(r)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return validationError(err.Error())
	}

	fe := verrs[0]
	switch {
	case fe.Field() == "URLs" && fe.Tag() == "required":
		return validationError("No URLs provided")
	case fe.Field() == "URLs" && fe.Tag() == "len":
		return validationError(fmt.Sprintf("Exactly %d URLs are required", URLCount))
	case strings.HasPrefix(fe.Field(), "URLs["):
		return validationError(fmt.Sprintf("URL %d must be an absolute http(s) URL", urlIndex(fe.Field())+1))
	case fe.Field() == "WebsiteType":
		return validationError("website_type must be at most 64 characters")
	}
	return validationError(fe.Error())
}

// urlIndex extracts i from "URLs[i]".
func urlIndex(field string) int {
	s := strings.TrimSuffix(strings.TrimPrefix(field, "URLs["), "]")
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return i
}
