package token

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stephnangue/edgegate/logical"
)

// NumericID is a user id claim. Issuers in the platform emit it either as a
// JSON number or as a numeric string; both decode to the same value.
type NumericID int64

func (n *NumericID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(s)
	}
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("user_id is not an integer: %w", err)
	}
	*n = NumericID(v)
	return nil
}

// Claims is the payload of a gateway bearer token.
type Claims struct {
	UserID    *NumericID `json:"user_id,omitempty"`
	Username  string     `json:"username,omitempty"`
	Email     string     `json:"email,omitempty"`
	FirstName string     `json:"first_name,omitempty"`
	LastName  string     `json:"last_name,omitempty"`
	Roles     []string   `json:"roles,omitempty"`
	SessionID string     `json:"session_id,omitempty"`
	IsGuest   bool       `json:"is_guest,omitempty"`

	jwt.RegisteredClaims
}

// Principal builds the request principal from verified claims. Guest tokens
// carry only a session id. User tokens must carry both user_id and
// username; every other claim is optional.
func (c *Claims) Principal() (*logical.Principal, error) {
	sessionID := c.SessionID
	if sessionID == "" {
		sessionID = c.Subject
	}

	if c.IsGuest {
		if sessionID == "" {
			return nil, fmt.Errorf("%w: guest token without session_id", ErrIncompleteClaims)
		}
		return &logical.Principal{SessionID: sessionID}, nil
	}

	if c.UserID == nil || c.Username == "" {
		return nil, fmt.Errorf("%w: user_id and username are required", ErrIncompleteClaims)
	}
	uid := int64(*c.UserID)
	p := &logical.Principal{
		UserID:    &uid,
		Username:  c.Username,
		Email:     c.Email,
		FirstName: c.FirstName,
		LastName:  c.LastName,
		SessionID: sessionID,
	}
	if len(c.Roles) > 0 {
		p.Roles = append([]string(nil), c.Roles...)
	}
	return p, nil
}
