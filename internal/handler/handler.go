// Package handler holds the helpers shared by the HTTP handlers in its
// subpackages.
package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/lifedrop-api/internal/geo"
	"github.com/jwalitptl/lifedrop-api/internal/middleware"
	"github.com/jwalitptl/lifedrop-api/internal/model"
	"github.com/jwalitptl/lifedrop-api/pkg/errors"
	"github.com/jwalitptl/lifedrop-api/pkg/httputil"
	"github.com/jwalitptl/lifedrop-api/pkg/validator"
)

// Actor returns the authenticated caller. Routes using it sit behind the
// auth middleware, so a missing actor answers 401.
func Actor(c *gin.Context) (model.Actor, bool) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		httputil.RespondWithError(c, errors.Unauthorized(nil))
	}
	return actor, ok
}

// ParamID parses a uuid path parameter, answering 400 when it is malformed.
func ParamID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		httputil.RespondWithError(c, errors.NewValidation("invalid path").Field(name, "must be a valid UUID"))
		return uuid.Nil, false
	}
	return id, true
}

// BindJSON binds and validates the body, answering 400 with field details on
// failure.
func BindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		httputil.RespondWithError(c, validator.Translate(err))
		return false
	}
	return true
}

// BindQuery binds query parameters into dst.
func BindQuery(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindQuery(dst); err != nil {
		httputil.RespondWithError(c, validator.Translate(err))
		return false
	}
	return true
}

// LocationQuery is the common shape of the nearby search endpoints.
type LocationQuery struct {
	Latitude  *float64 `form:"latitude"`
	Longitude *float64 `form:"longitude"`
	RadiusKm  float64  `form:"radius"`
	City      string   `form:"city"`
}

// Geo converts the query parameters into a geo.Query. Half a coordinate
// pair is an error; the radius falls back to defaultRadiusKm.
func (q LocationQuery) Geo(defaultRadiusKm float64) (geo.Query, error) {
	out := geo.Query{RadiusKm: q.RadiusKm, City: strings.TrimSpace(q.City)}
	if out.RadiusKm == 0 {
		out.RadiusKm = defaultRadiusKm
	}
	if (q.Latitude == nil) != (q.Longitude == nil) {
		return out, errors.NewValidation("invalid location search").Field("latitude", "latitude and longitude must be set together")
	}
	if q.Latitude != nil {
		p := geo.Point{Lat: *q.Latitude, Lng: *q.Longitude}
		out.Center = &p
	}
	return out, nil
}

// QueryInt reads an optional integer query parameter.
func QueryInt(c *gin.Context, name string, fallback int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		httputil.RespondWithError(c, errors.NewValidation("invalid query").Field(name, "must be an integer"))
		return 0, false
	}
	return n, true
}

// QueryBloodType reads a blood type from the query string. An unescaped "+"
// arrives as a space, so "A " is read back as "A+".
func QueryBloodType(raw string) model.BloodType {
	return model.BloodType(strings.ToUpper(strings.TrimSpace(strings.ReplaceAll(raw, " ", "+"))))
}

// BindOptionalJSON binds the body when one was sent. Action endpoints accept
// an empty body.
func BindOptionalJSON(c *gin.Context, dst interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	return BindJSON(c, dst)
}

// QueryList splits a comma separated query parameter, dropping blanks.
func QueryList(c *gin.Context, name string) []string {
	var out []string
	for _, raw := range c.QueryArray(name) {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
