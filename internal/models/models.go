// package models defines the data model for lead collection
package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingID          = errors.New("record has no id")
	ErrNoIdentifyingField = errors.New("record has no identifying field")
	ErrUnknownVersion     = errors.New("unknown version")
)

// UserRecord is a single lead discovered on a profile feed.
//
// Records are immutable once inserted into a [Snapshot]; the JSON names match the durable storage layout.
type UserRecord struct {
	ID          string `json:"userId"`
	Username    string `json:"username"`
	DouyinID    string `json:"douyinId"`
	Bio         string `json:"bio"`
	Fans        string `json:"fans"`
	Likes       string `json:"likes"`
	Phone       string `json:"phone"`
	Wechat      string `json:"wechat"`
	Name        string `json:"name"`
	CompanyName string `json:"companyName"`
	Verified    string `json:"verified"`
	UserLink    string `json:"userLink"`
	Timestamp   int64  `json:"timestamp"` // discovery time in unix milliseconds
}

// Validate reports whether the record can be accepted into a snapshot.
//
// Optional fields may be empty, but the record needs an id and at least one identifying field.
func (u UserRecord) Validate() error {
	if strings.TrimSpace(u.ID) == "" {
		return ErrMissingID
	}
	for _, v := range []string{u.Username, u.DouyinID, u.Bio, u.Phone, u.Wechat} {
		if strings.TrimSpace(v) != "" {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNoIdentifyingField, u.ID)
}

// UserIDFromLink returns the profile id segment of a link such as https://host/user/<id>?from=feed.
func UserIDFromLink(link string) string {
	_, rest, found := strings.Cut(link, "/user/")
	if !found {
		return ""
	}
	id, _, _ := strings.Cut(rest, "?")
	id, _, _ = strings.Cut(id, "#")
	return strings.Trim(id, "/")
}
