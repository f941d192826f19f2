package notification

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/lifedrop-api/internal/geo"
	"github.com/jwalitptl/lifedrop-api/internal/model"
	"github.com/jwalitptl/lifedrop-api/internal/realtime"
	"github.com/jwalitptl/lifedrop-api/internal/repository"
	"github.com/jwalitptl/lifedrop-api/pkg/errors"
)

type AudienceKind string

const (
	AudienceUsers     AudienceKind = "users"
	AudienceBloodType AudienceKind = "blood_type"
	AudienceCity      AudienceKind = "city"
	AudienceRadius    AudienceKind = "radius"
)

// Audience selects the users a notification goes to.
type Audience struct {
	Kind    AudienceKind
	UserIDs []uuid.UUID

	BloodType model.BloodType
	// Compatible widens a blood type audience to every donor type that can
	// give to BloodType.
	Compatible bool
	// OnlyEligible drops donors still inside the donation interval.
	OnlyEligible bool

	City     string
	Center   *geo.Point
	RadiusKm float64

	// Exclude is removed from the resolved set, for example the requester.
	Exclude []uuid.UUID
}

func ToUsers(ids ...uuid.UUID) Audience {
	return Audience{Kind: AudienceUsers, UserIDs: ids}
}

func ByBloodType(bt model.BloodType, compatible bool) Audience {
	return Audience{Kind: AudienceBloodType, BloodType: bt, Compatible: compatible}
}

func ByCity(city string) Audience {
	return Audience{Kind: AudienceCity, City: city}
}

// ByRadius selects donors of bt within radiusKm of center. Donors without
// coordinates are reached through city when it is set.
func ByRadius(bt model.BloodType, center *geo.Point, radiusKm float64, city string) Audience {
	return Audience{Kind: AudienceRadius, BloodType: bt, Center: center, RadiusKm: radiusKm, City: city}
}

func (a Audience) Validate() error {
	v := errors.NewValidation("invalid audience")
	switch a.Kind {
	case AudienceUsers:
		if len(a.UserIDs) == 0 {
			v.Field("user_ids", "at least one user is required")
		}
	case AudienceBloodType:
		if !a.BloodType.Valid() {
			v.Field("blood_type", "unknown blood type")
		}
	case AudienceCity:
		if strings.TrimSpace(a.City) == "" {
			v.Field("city", "city is required")
		}
	case AudienceRadius:
		if a.BloodType != "" && !a.BloodType.Valid() {
			v.Field("blood_type", "unknown blood type")
		}
		if err := a.query().Validate(); err != nil {
			return err
		}
	default:
		v.Field("kind", fmt.Sprintf("unknown audience kind %q", a.Kind))
	}
	return v.OrNil()
}

// Room is the realtime room a group audience also broadcasts to.
func (a Audience) Room() string {
	switch a.Kind {
	case AudienceBloodType:
		return realtime.BloodTypeRoom(a.BloodType)
	case AudienceCity:
		return realtime.LocationRoom(a.City)
	}
	return ""
}

func (a Audience) query() geo.Query {
	return geo.Query{Center: a.Center, RadiusKm: a.RadiusKm, City: a.City}
}

func (a Audience) bloodTypes() []model.BloodType {
	if a.BloodType == "" {
		return nil
	}
	if a.Compatible {
		return model.CompatibleDonors(a.BloodType)
	}
	return []model.BloodType{a.BloodType}
}

type resolver struct {
	users repository.UserRepository
}

func (r resolver) resolve(ctx context.Context, a Audience, now time.Time) ([]*model.User, error) {
	var (
		users []*model.User
		err   error
	)
	switch a.Kind {
	case AudienceUsers:
		users, err = r.users.ListByIDs(ctx, dedupe(a.UserIDs))
	case AudienceCity:
		users, err = r.users.ListByCity(ctx, strings.TrimSpace(a.City))
	case AudienceBloodType:
		users, err = r.users.FindDonors(ctx, r.donorFilter(a, now))
	case AudienceRadius:
		users, err = r.nearby(ctx, a, now)
	default:
		return nil, fmt.Errorf("unknown audience kind %q", a.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s audience: %w", a.Kind, err)
	}
	return exclude(users, a.Exclude), nil
}

func (r resolver) donorFilter(a Audience, now time.Time) model.DonorFilter {
	f := model.DonorFilter{
		BloodTypes:    a.bloodTypes(),
		OnlyAvailable: true,
		OnlyVerified:  true,
	}
	if a.OnlyEligible {
		f.EligibleAt = &now
	}
	return f
}

// nearby narrows candidates in storage with a bounding box and applies the
// exact haversine check here.
func (r resolver) nearby(ctx context.Context, a Audience, now time.Time) ([]*model.User, error) {
	q := a.query()
	f := r.donorFilter(a, now)
	if box, ok := q.Box(); ok {
		f.Box = &box
		f.FallbackCity = strings.TrimSpace(q.City)
	} else if q.Center == nil {
		f.City = strings.TrimSpace(q.City)
	}

	candidates, err := r.users.FindDonors(ctx, f)
	if err != nil {
		return nil, err
	}
	matches, err := geo.Filter(q, candidates, nil, ByLastDonation)
	if err != nil {
		return nil, err
	}
	return geo.Items(matches), nil
}

// ByLastDonation puts donors who waited longest first, never donated before
// all others, then nearest first.
func ByLastDonation(a, b geo.Match[*model.User]) bool {
	la, lb := a.Item.LastDonationDate, b.Item.LastDonationDate
	switch {
	case la == nil && lb != nil:
		return true
	case la != nil && lb == nil:
		return false
	case la != nil && lb != nil && !la.Equal(*lb):
		return la.Before(*lb)
	}
	return distance(a.DistanceKm) < distance(b.DistanceKm)
}

func distance(d *float64) float64 {
	if d == nil {
		return math.Inf(1)
	}
	return *d
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func exclude(users []*model.User, ids []uuid.UUID) []*model.User {
	if len(ids) == 0 {
		return users
	}
	skip := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		skip[id] = struct{}{}
	}
	out := users[:0]
	for _, u := range users {
		if _, ok := skip[u.ID]; !ok {
			out = append(out, u)
		}
	}
	return out
}
