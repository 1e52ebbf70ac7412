package tokenstore

import (
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

// authorizedUserToken is the token.json layout written by the Python
// google-auth library. Only the fields oauth2.Token can carry are read;
// client id, secret and scopes come from the credentials file instead.
type authorizedUserToken struct {
	Token string `json:"token"`
}

func encodeToken(token *oauth2.Token) ([]byte, error) {
	if token == nil {
		return nil, errors.New("token is nil")
	}
	data, err := json.Marshal(token)
	if err != nil {
		return nil, fmt.Errorf("failed to encode token: %w", err)
	}
	return data, nil
}

// decodeToken reads either the oauth2.Token JSON layout or the google-auth
// authorized user layout. Both share the refresh_token and expiry keys.
func decodeToken(data []byte) (*oauth2.Token, error) {
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}

	if token.AccessToken == "" {
		var legacy authorizedUserToken
		if err := json.Unmarshal(data, &legacy); err != nil {
			return nil, fmt.Errorf("failed to decode token: %w", err)
		}
		token.AccessToken = legacy.Token
	}

	if token.AccessToken == "" && token.RefreshToken == "" {
		return nil, errors.New("failed to decode token: neither access_token, token nor refresh_token is set")
	}
	return &token, nil
}
