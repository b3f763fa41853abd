package domain

import "errors"

var ErrProfileNotExist = errors.New("profile does not exist")

// Profile is one server custodiactl can talk to.
type Profile struct {
	Name       string
	ServerURL  string
	CronHeader string
	// Secret signs job requests when the server has cron.secret set.
	Secret string
}

type ProfileRepository interface {
	Get(name string) (Profile, error)
	List() ([]Profile, error)
	Set(name string, p Profile) error
	Delete(name string) error
}
