package permissions

import "github.com/noah-isme/vzs-club-api/internal/models"

var childTypes = []models.PersonType{models.PersonTypeChild, models.PersonTypeParent}

var scopeTypes = map[string][]models.PersonType{
	PersonsMembership: models.AllPersonTypes,
	PersonsChildren:   childTypes,
	PersonsAquatic:    childTypes,
	PersonsClimbing:   childTypes,
	PersonsAdults:     {models.PersonTypeAdult, models.PersonTypeExpectant, models.PersonTypeHonorary},
}

// VisibleTypes is the union of person types granted by the user's membership
// scopes, in catalogue order. A nil result means the user sees no one beyond
// themselves and the persons they manage.
func VisibleTypes(u *models.User) []models.PersonType {
	if u == nil {
		return nil
	}
	granted := map[models.PersonType]bool{}
	for scope, types := range scopeTypes {
		if !u.HasPermission(scope) {
			continue
		}
		for _, t := range types {
			granted[t] = true
		}
	}
	if len(granted) == 0 {
		return nil
	}
	out := make([]models.PersonType, 0, len(granted))
	for _, t := range models.AllPersonTypes {
		if granted[t] {
			out = append(out, t)
		}
	}
	return out
}

// CanSeeType reports whether the user's scopes cover person type t.
func CanSeeType(u *models.User, t models.PersonType) bool {
	for _, v := range VisibleTypes(u) {
		if v == t {
			return true
		}
	}
	return false
}

// IntersectTypes narrows requested types to the visible ones. An empty
// request means every visible type.
func IntersectTypes(visible, requested []models.PersonType) []models.PersonType {
	if len(requested) == 0 {
		return visible
	}
	out := make([]models.PersonType, 0, len(requested))
	for _, r := range requested {
		for _, v := range visible {
			if r == v {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

// HasAnyScope reports whether the user holds some membership scope.
func HasAnyScope(u *models.User) bool {
	return u.HasAnyPermission(PersonsMembership, PersonsChildren, PersonsAquatic, PersonsClimbing, PersonsAdults)
}
