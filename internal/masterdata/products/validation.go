package products

import (
	"fmt"
	"strings"

	"github.com/meridian-erp/meridian-erp/internal/masterdata/shared"
)

func (s *Service) validate(p Product) error {
	if strings.TrimSpace(p.Code) == "" {
		return fmt.Errorf("%w: product code", shared.ErrRequiredField)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: product name", shared.ErrRequiredField)
	}
	if p.MinQuantity < 0 {
		return fmt.Errorf("%w: min quantity cannot be negative", shared.ErrValidation)
	}
	if p.MaxQuantity != 0 && p.MaxQuantity < p.MinQuantity {
		return fmt.Errorf("%w: max quantity below min quantity", shared.ErrValidation)
	}
	return nil
}
