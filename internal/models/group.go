package models

// Group is a named set of persons, optionally mirrored from a directory
// mailing list.
type Group struct {
	ID                       int64   `db:"id" json:"id"`
	Name                     string  `db:"name" json:"name"`
	GoogleEmail              *string `db:"google_email" json:"google_email,omitempty"`
	GoogleAsMembersAuthority bool    `db:"google_as_members_authority" json:"google_as_members_authority"`
}

// GroupRequest is the create/update payload for a group.
type GroupRequest struct {
	Name                     string  `json:"name" validate:"required,max=50"`
	GoogleEmail              *string `json:"google_email" validate:"omitempty,email"`
	GoogleAsMembersAuthority bool    `json:"google_as_members_authority"`
}

// GroupMembersRequest adds or removes members.
type GroupMembersRequest struct {
	PersonIDs []int64 `json:"person_ids" validate:"required,min=1,dive,min=1"`
}
