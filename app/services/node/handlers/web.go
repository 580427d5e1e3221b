package handlers

import (
	"context"
	"net/http"

	"github.com/tidechain/tide/business/web/errs"
	"github.com/tidechain/tide/foundation/web"
)

// respondError maps an error to the response the client sees.
func respondError(ctx context.Context, w http.ResponseWriter, err error) error {
	switch {
	case errs.IsFieldErrors(err):
		fieldErrors := errs.GetFieldErrors(err)
		er := errs.Response{
			Error:  "data validation error",
			Fields: fieldErrors.Fields(),
		}
		return web.Respond(ctx, w, er, http.StatusBadRequest)

	case errs.IsTrusted(err):
		trusted := errs.GetTrusted(err)
		er := errs.Response{Error: trusted.Error()}
		return web.Respond(ctx, w, er, trusted.Status)
	}

	er := errs.Response{Error: http.StatusText(http.StatusInternalServerError)}
	return web.Respond(ctx, w, er, http.StatusInternalServerError)
}
