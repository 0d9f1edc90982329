package user

import (
	"errors"
	"strings"
)

var ErrInvalidRole = errors.New("user: invalid role")

type Role string

const (
	// RoleEmployer browses applicants and posts jobs.
	RoleEmployer Role = "kindbossing"
	// RoleSeeker applies to jobs.
	RoleSeeker Role = "kindtao"
	RoleAdmin  Role = "admin"
)

func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleEmployer:
		return RoleEmployer, nil
	case RoleSeeker:
		return RoleSeeker, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", ErrInvalidRole
	}
}
