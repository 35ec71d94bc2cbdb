package httpadapter

import (
	"fmt"
	"net/http"

	"github.com/oapi-codegen/runtime"

	"github.com/kirillkom/graphrag-assistant/internal/core/domain"
)

// lineCountParam binds the optional line_count query parameter. Absent means 0.
func lineCountParam(r *http.Request) (int, error) {
	var lineCount *int
	if err := runtime.BindQueryParameter("form", true, false, "line_count", r.URL.Query(), &lineCount); err != nil {
		return 0, domain.WrapError(domain.ErrInvalidInput, "bind line_count", err)
	}
	if lineCount == nil {
		return 0, nil
	}
	if *lineCount < 0 {
		return 0, domain.WrapError(domain.ErrInvalidInput, "bind line_count", fmt.Errorf("must not be negative"))
	}
	return *lineCount, nil
}
