package keyword

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	MinDepth     = 1
	MaxDepth     = 5
	DefaultDepth = 2
)

// Params describes one research job.
type Params struct {
	Seed               string `json:"seed" validate:"required"`
	Region             Region `json:"region" validate:"required,region"`
	MaxDepth           int    `json:"max_depth" validate:"min=1,max=5"`
	AnalyzeCompetition bool   `json:"analyze_competition"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("region", func(fl validator.FieldLevel) bool {
		return Region(fl.Field().String()).Valid()
	})
	return v
}

// Normalize trims the seed and fills the default region.
func (p Params) Normalize() Params {
	p.Seed = Normalize(p.Seed)
	if p.Region == "" {
		p.Region = DefaultRegion
	}
	return p
}

// Validate checks the parameters against the accepted ranges.
func (p Params) Validate() error {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate params: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Field() {
		case "Seed":
			msgs = append(msgs, "seed keyword must not be empty")
		case "Region":
			msgs = append(msgs, fmt.Sprintf("region %q is not supported", fe.Value()))
		case "MaxDepth":
			msgs = append(msgs, fmt.Sprintf("depth must be between %d and %d", MinDepth, MaxDepth))
		default:
			msgs = append(msgs, fe.Error())
		}
	}
	return errors.New("invalid params: " + strings.Join(msgs, "; "))
}
