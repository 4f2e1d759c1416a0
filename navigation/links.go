// Package navigation maps who is signed in to the ordered links the
// application header shows.
package navigation

import (
	"strings"

	"github.com/MrEthical07/authflow"
)

// Roles with their own navigation entries.
const (
	RoleDoctor = "doctor"
	RoleAdmin  = "admin"
)

// Paths of the application routes.
const (
	PathHome           = "/"
	PathRecords        = "/records"
	PathCollections    = "/collections"
	PathUpload         = "/upload"
	PathFindDoctors    = "/find-doctors"
	PathDoctor         = "/doctor"
	PathDoctorRegister = "/doctor/register"
	PathAdmin          = "/admin"
	PathProfile        = "/profile"
	PathLogin          = "/login"
	PathRegister       = "/register"
)

// Action tells the view what activating a link does.
type Action uint8

const (
	// ActionNavigate routes to Link.Path.
	ActionNavigate Action = iota
	// ActionLogout ends the session. Link.Path is empty.
	ActionLogout
)

// Link is one entry of the header.
type Link struct {
	Label   string
	Path    string
	Action  Action
	Current bool
}

// Viewer is what the link rules depend on.
type Viewer struct {
	Authenticated bool
	Username      string
	Role          string
	// Verified is the doctor-application verification status.
	Verified bool
}

// ViewerFromSession builds a Viewer from the controller's read-only session.
// Pass the result of Controller.Session directly.
func ViewerFromSession(s authflow.Session, ok bool) Viewer {
	if !ok {
		return Viewer{}
	}
	return Viewer{
		Authenticated: true,
		Username:      s.User.Username,
		Role:          strings.ToLower(strings.TrimSpace(s.User.Role)),
		Verified:      s.User.VerificationStatus,
	}
}

// Links returns the primary navigation for v, in display order.
func Links(v Viewer) []Link {
	if !v.Authenticated {
		return []Link{
			{Label: "Home", Path: PathHome},
			{Label: "Find Doctors", Path: PathFindDoctors},
		}
	}

	links := make([]Link, 0, 7)
	links = append(links,
		Link{Label: "Home", Path: PathHome},
		Link{Label: "Records", Path: PathRecords},
		Link{Label: "Collections", Path: PathCollections},
		Link{Label: "Upload", Path: PathUpload},
		Link{Label: "Find Doctors", Path: PathFindDoctors},
	)
	if v.Role == RoleDoctor {
		links = append(links, Link{Label: "Dashboard", Path: PathDoctor})
	}
	if canApplyAsDoctor(v) {
		links = append(links, Link{Label: "Become a Doctor", Path: PathDoctorRegister})
	}
	if v.Role == RoleAdmin {
		links = append(links, Link{Label: "Admin", Path: PathAdmin})
	}
	return links
}

// Verified users have already applied.
func canApplyAsDoctor(v Viewer) bool {
	return v.Role != RoleAdmin && v.Role != RoleDoctor && !v.Verified
}

// AccountLinks returns the account area entries: the profile link and
// logout for a signed-in viewer, login and sign-up otherwise.
func AccountLinks(v Viewer, currentPath string) []Link {
	if !v.Authenticated {
		return []Link{
			{Label: "Log in", Path: PathLogin, Current: currentPath == PathLogin},
			{Label: "Sign up", Path: PathRegister, Current: currentPath == PathRegister},
		}
	}

	label := v.Username
	if label == "" {
		label = "Profile"
	}
	return []Link{
		{Label: label, Path: PathProfile, Current: currentPath == PathProfile},
		{Label: "Log out", Action: ActionLogout},
	}
}
