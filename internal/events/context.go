package events

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ContextData holds the ambient properties computed once by Init.
type ContextData map[string]any

// FullnameToID decodes the base-36 id of a thing fullname such as "t3_15bfi0".
func FullnameToID(fullname string) (int64, error) {
	_, id, ok := strings.Cut(fullname, "_")
	if !ok || id == "" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFullname, fullname)
	}
	n, err := strconv.ParseInt(id, 36, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFullname, fullname)
	}
	return n, nil
}

// newContextData derives the context from the page. A logged-out page without
// a loid gets a fresh one.
func newContextData(page PageContext, newLoid func() string, now time.Time) ContextData {
	data := ContextData{
		"dnt":             page.DoNotTrack,
		"language":        nilIfEmpty(page.Language),
		"link_id":         fullnameOrNil(page.CurLink),
		"loid":            nil,
		"loid_created":    nil,
		"referrer_url":    page.Referrer,
		"referrer_domain": referrerDomain(page.Referrer),
		"sr_id":           fullnameOrNil(page.CurSite),
		"sr_name":         nilIfEmpty(page.PostSite),
		"user_id":         nil,
		"user_name":       nil,
		"user_in_beta":    page.PrefBeta,
	}

	if page.UserID != "" {
		data["user_id"] = page.UserID
		data["user_name"] = page.UserName
	} else {
		loid, created := page.Loid, page.LoidCreated
		if loid == "" {
			loid = newLoid()
			created = now.UTC().Format(time.RFC3339)
		}
		if unescaped, err := url.QueryUnescape(created); err == nil {
			created = unescaped
		}
		data["loid"] = loid
		data["loid_created"] = nilIfEmpty(created)
	}

	switch page.PageType {
	case "comments":
		data["page_type"] = "comments"
	case "listing":
		data["page_type"] = "listing"
		if page.CurListing != "" {
			data["listing_name"] = page.CurListing
		}
	}

	if page.ExpandoPreference != "" {
		data["expando_preference"] = page.ExpandoPreference
	}
	if page.PrefNoProfanity {
		data["media_preference_hide_nsfw"] = true
	}

	return data
}

// addTo returns a copy of payload with the identity fields and every
// requested non-nil context property set.
func (c ContextData) addTo(properties []string, payload Payload) Payload {
	merged := make(Payload, len(payload)+len(properties)+2)
	for k, v := range payload {
		merged[k] = v
	}

	if c["user_id"] != nil {
		merged["user_id"] = c["user_id"]
		merged["user_name"] = c["user_name"]
	} else {
		merged["loid"] = c["loid"]
		merged["loid_created"] = c["loid_created"]
	}

	for _, name := range properties {
		if v, ok := c[name]; ok && v != nil {
			merged[name] = v
		}
	}
	return merged
}

func referrerDomain(referrer string) any {
	if referrer == "" {
		return nil
	}
	u, err := url.Parse(referrer)
	if err != nil || u.Host == "" {
		return nil
	}
	return u.Host
}

func fullnameOrNil(fullname string) any {
	if fullname == "" {
		return nil
	}
	id, err := FullnameToID(fullname)
	if err != nil {
		return nil
	}
	return id
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func newUUIDLoid() string {
	return uuid.NewString()
}
