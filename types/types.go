package types

import (
	"strconv"
	"time"
)

// Identity is the user identity the session layer consumes.
type Identity struct {
	UserID      int64  `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	IsActive    bool   `json:"is_active"`
	IsStaff     bool   `json:"is_staff"`
	IsSuperuser bool   `json:"is_superuser"`
}

// Hash field names of a session record.
const (
	FieldUserID      = "user_id"
	FieldUsername    = "username"
	FieldEmail       = "email"
	FieldIsActive    = "is_active"
	FieldIsStaff     = "is_staff"
	FieldIsSuperuser = "is_superuser"
)

// SessionData is the snapshot stored under session:<handle>. It is taken at
// login and never joined against the user store afterwards.
type SessionData struct {
	UserID      int64
	Username    string
	Email       string
	IsActive    bool
	IsStaff     bool
	IsSuperuser bool
}

func NewSessionData(id Identity) SessionData {
	return SessionData{
		UserID:      id.UserID,
		Username:    id.Username,
		Email:       id.Email,
		IsActive:    id.IsActive,
		IsStaff:     id.IsStaff,
		IsSuperuser: id.IsSuperuser,
	}
}

func (s SessionData) Identity() Identity {
	return Identity{
		UserID:      s.UserID,
		Username:    s.Username,
		Email:       s.Email,
		IsActive:    s.IsActive,
		IsStaff:     s.IsStaff,
		IsSuperuser: s.IsSuperuser,
	}
}

// Hash encodes the snapshot into the store's hash representation.
func (s SessionData) Hash() map[string]string {
	return map[string]string{
		FieldUserID:      strconv.FormatInt(s.UserID, 10),
		FieldUsername:    s.Username,
		FieldEmail:       s.Email,
		FieldIsActive:    strconv.FormatBool(s.IsActive),
		FieldIsStaff:     strconv.FormatBool(s.IsStaff),
		FieldIsSuperuser: strconv.FormatBool(s.IsSuperuser),
	}
}

// SessionDataFromHash decodes a stored hash. Flags are optional and default
// to false; user_id and username are required. Flags written by older
// deployments as "True"/"False" are accepted.
func SessionDataFromHash(h map[string]string) (SessionData, bool) {
	raw, ok := h[FieldUserID]
	if !ok {
		return SessionData{}, false
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return SessionData{}, false
	}
	username, ok := h[FieldUsername]
	if !ok || username == "" {
		return SessionData{}, false
	}
	return SessionData{
		UserID:      userID,
		Username:    username,
		Email:       h[FieldEmail],
		IsActive:    parseFlag(h[FieldIsActive]),
		IsStaff:     parseFlag(h[FieldIsStaff]),
		IsSuperuser: parseFlag(h[FieldIsSuperuser]),
	}, true
}

func parseFlag(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

type RedisConfig struct {
	URL          string        `yaml:"url"`
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	Prefix       string        `yaml:"prefix"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}
