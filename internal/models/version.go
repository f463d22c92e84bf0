package models

import (
	"fmt"
	"strings"
)

// Version selects one of the isolated namespaces.
type Version string

const (
	VersionBasic Version = "basic"
	VersionPro   Version = "pro"
)

// Versions lists every namespace in a stable order.
var Versions = []Version{VersionBasic, VersionPro}

// StorageKeys is the durable key pair owned by a [Version].
type StorageKeys struct {
	Collected string // array of ids
	Saved     string // array of [UserRecord]
}

// ParseVersion maps a tier tag to a [Version]; the empty tag selects [VersionBasic].
func ParseVersion(s string) (Version, error) {
	switch Version(strings.ToLower(strings.TrimSpace(s))) {
	case "", VersionBasic:
		return VersionBasic, nil
	case VersionPro:
		return VersionPro, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownVersion, s)
	}
}

// Valid reports whether v is a known namespace.
func (v Version) Valid() bool {
	return v == VersionBasic || v == VersionPro
}

// OrDefault returns v, or [VersionBasic] when v is empty.
func (v Version) OrDefault() Version {
	if v == "" {
		return VersionBasic
	}
	return v
}

// Keys returns the durable key pair for v.
func (v Version) Keys() StorageKeys {
	if v == VersionPro {
		return StorageKeys{Collected: "proCollectedUsers", Saved: "proSavedUserList"}
	}
	return StorageKeys{Collected: "collectedUsers", Saved: "savedUserList"}
}

// Label returns the display name of the tier.
func (v Version) Label() string {
	if v == VersionPro {
		return "高级版"
	}
	return "基础版"
}

func (v Version) String() string { return string(v) }
