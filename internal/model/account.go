package model

import "time"

// LinkedAccount is one row per API user, keyed by the absolute uid handed to us
// by the upstream auth gateway. It holds the materialized result of the last
// successful link against each legacy system.
//
// The classic trio (email, mirror, cookie) is always written together: the
// cookie is scoped to the mirror that issued it, so a cookie without its mirror
// is useless and a cookie without its email is untraceable.
type LinkedAccount struct {
	ID              string    `json:"-"`
	AbsoluteUID     int64     `json:"-"`
	ClassicEmail    string    `json:"classic_email"`
	ClassicMirror   string    `json:"classic_mirror"`
	ClassicCookie   string    `json:"-"`
	TwoPointOhEmail string    `json:"twopointoh_email"`
	CreatedAt       time.Time `json:"-"`
	UpdatedAt       time.Time `json:"-"`
}

// HasClassic reports whether a classic session has ever been linked.
func (a *LinkedAccount) HasClassic() bool {
	return a.ClassicEmail != ""
}

// HasTwoPointOh reports whether an ADS 2.0 account has ever been linked.
func (a *LinkedAccount) HasTwoPointOh() bool {
	return a.TwoPointOhEmail != ""
}
