package httpadapter

import (
	"net/http"

	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrValidation):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrParseFailure):
		return http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrDuplicateMessage):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrStoreUnavailable),
		domain.IsKind(err, domain.ErrAnalysisUnavailable),
		domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
