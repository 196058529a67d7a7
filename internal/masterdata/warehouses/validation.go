package warehouses

import (
	"fmt"
	"strings"

	"github.com/meridian-erp/meridian-erp/internal/masterdata/shared"
)

func (s *Service) validate(w Warehouse) error {
	if strings.TrimSpace(w.Code) == "" {
		return fmt.Errorf("%w: warehouse code", shared.ErrRequiredField)
	}
	if strings.TrimSpace(w.Name) == "" {
		return fmt.Errorf("%w: warehouse name", shared.ErrRequiredField)
	}
	if w.CapacityLimit < 0 {
		return fmt.Errorf("%w: capacity limit cannot be negative", shared.ErrValidation)
	}
	return nil
}
