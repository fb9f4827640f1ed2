package feature

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// specValidate checks Spec struct tags. Field names in messages use the json
// tag so they match what callers sent.
var specValidate *validator.Validate

func init() {
	specValidate = validator.New(validator.WithRequiredStructEnabled())
	specValidate.RegisterTagNameFunc(jsonFieldName)
}

func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" || name == "" {
		return fld.Name
	}
	return name
}

// Validator returns the shared struct validator, configured to report json field names.
func Validator() *validator.Validate { return specValidate }

// ValidateSpec checks the required create fields. The returned error wraps
// ErrInvalidRequest.
func ValidateSpec(s Spec) error {
	if err := specValidate.Struct(s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidRequest, DescribeValidation(err))
	}
	return nil
}

// DescribeValidation turns validator errors into one readable line.
func DescribeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fe.Field()+" is required")
		case "min", "gte":
			parts = append(parts, fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param()))
		case "max", "lte":
			parts = append(parts, fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

var projectNameRE = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateProject checks that a project name is safe to embed in storage keys
// and file paths. Both backends apply the same rule.
func ValidateProject(name string) error {
	if !projectNameRE.MatchString(name) {
		return fmt.Errorf("%w: invalid project name %q", ErrInvalidRequest, name)
	}
	return nil
}

// CheckSelfReference fails when id appears in deps.
func CheckSelfReference(op string, id int64, deps []int64) error {
	for _, d := range deps {
		if d == id {
			return Errf(op, id, ErrInvalidRequest, "a feature cannot depend on itself")
		}
	}
	return nil
}

// CheckFanIn fails when n dependencies exceed max.
func CheckFanIn(op string, id int64, n, max int) error {
	if n > max {
		return Errf(op, id, ErrLimitExceeded, "maximum %d dependencies allowed, got %d", max, n)
	}
	return nil
}

// CheckDuplicates fails when deps lists an id twice.
func CheckDuplicates(op string, id int64, deps []int64) error {
	seen := make(map[int64]struct{}, len(deps))
	for _, d := range deps {
		if _, ok := seen[d]; ok {
			return Errf(op, id, ErrInvalidRequest, "duplicate dependency %d", d)
		}
		seen[d] = struct{}{}
	}
	return nil
}

// CheckExists fails, listing every missing id, when exists rejects any of deps.
func CheckExists(op string, id int64, deps []int64, exists func(int64) bool) error {
	var missing []int64
	for _, d := range deps {
		if !exists(d) {
			missing = append(missing, d)
		}
	}
	if len(missing) > 0 {
		return Errf(op, id, ErrNotFound, "dependencies not found: %v", missing)
	}
	return nil
}
